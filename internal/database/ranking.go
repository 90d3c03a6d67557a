package database

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ContentScores totals keyword_count × weight over the given categories for
// every article that has a positive count in at least one of them. Results
// are ordered by score descending, then article ID ascending.
func (db *DB) ContentScores(ctx context.Context, weights map[string]int) ([]ScoredArticle, error) {
	if len(weights) == 0 {
		return nil, nil
	}

	categories := make([]string, 0, len(weights))
	var expr strings.Builder
	var exprArgs []any
	expr.WriteString("SUM(c.keyword_count * CASE c.category")
	for cat, w := range weights {
		categories = append(categories, cat)
		expr.WriteString(" WHEN ? THEN ?")
		exprArgs = append(exprArgs, cat, w)
	}
	expr.WriteString(" ELSE 0 END) AS total")

	query, args, err := psql.
		Select("a.id", "a.title").
		Column(sq.Expr(expr.String(), exprArgs...)).
		From("articles a").
		Join("article_classification c ON c.article_id = a.id").
		Where(sq.Eq{"c.category": categories}).
		Where(sq.Gt{"c.keyword_count": 0}).
		GroupBy("a.id", "a.title").
		OrderBy("total DESC", "a.id ASC").
		ToSql()
	if err != nil {
		return nil, wrap("content scores", fmt.Errorf("building query: %w", err))
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("content scores", err)
	}
	defer rows.Close()

	var out []ScoredArticle
	for rows.Next() {
		var s ScoredArticle
		if err := rows.Scan(&s.ArticleID, &s.Title, &s.Score); err != nil {
			return nil, wrap("content scores", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("content scores", err)
	}
	return out, nil
}
