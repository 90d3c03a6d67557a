// Package classify scores article text against the keyword taxonomy.
package classify

import (
	"context"
	"strings"

	"github.com/TobiSchelling/newsrank/internal/database"
	"github.com/TobiSchelling/newsrank/internal/taxonomy"
)

// Store persists classification results.
type Store interface {
	SaveClassification(ctx context.Context, articleID int64, counts []database.Classification) error
}

// Classifier counts taxonomy keywords in article text.
type Classifier struct {
	tax   *taxonomy.Taxonomy
	store Store
}

// New creates a Classifier. store may be nil when only Score is used.
func New(tax *taxonomy.Taxonomy, store Store) *Classifier {
	return &Classifier{tax: tax, store: store}
}

// Score returns, for every category, how many of its keywords occur in text.
// A keyword counts once no matter how often it appears.
func (c *Classifier) Score(text string) map[string]int {
	lower := strings.ToLower(text)
	scores := make(map[string]int, c.tax.Len())
	c.tax.Each(func(name string, keywords []string) {
		n := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				n++
			}
		}
		scores[name] = n
	})
	return scores
}

// Classify scores text and replaces the stored counts for the article with
// one row per category, zeros included.
func (c *Classifier) Classify(ctx context.Context, articleID int64, text string) (map[string]int, error) {
	scores := c.Score(text)
	if err := c.store.SaveClassification(ctx, articleID, c.rows(articleID, scores)); err != nil {
		return nil, err
	}
	return scores, nil
}

// ClassifyTx is Classify writing through tx, for callers that store the
// article in the same transaction.
func (c *Classifier) ClassifyTx(ctx context.Context, tx *database.Tx, articleID int64, text string) (map[string]int, error) {
	scores := c.Score(text)
	if err := tx.SaveClassification(ctx, articleID, c.rows(articleID, scores)); err != nil {
		return nil, err
	}
	return scores, nil
}

func (c *Classifier) rows(articleID int64, scores map[string]int) []database.Classification {
	rows := make([]database.Classification, 0, len(scores))
	for _, name := range c.tax.Names() {
		rows = append(rows, database.Classification{
			ArticleID:    articleID,
			Category:     name,
			KeywordCount: scores[name],
		})
	}
	return rows
}

// TopCategory returns the category with the highest count. Ties go to the
// category declared first; "" is returned when every count is zero.
func (c *Classifier) TopCategory(scores map[string]int) (string, int) {
	best, bestCount := "", 0
	for _, name := range c.tax.Names() {
		if n := scores[name]; n > bestCount {
			best, bestCount = name, n
		}
	}
	return best, bestCount
}
