package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/newsrank/internal/metrics"
)

// RankContent orders articles by Σ keyword_count × preference over the
// user's non-zero preference categories. Ties keep article ID order. A user
// without any positive preference gets an empty ranking.
func (e *Engine) RankContent(ctx context.Context, userID int64) ([]string, error) {
	defer observe("content", time.Now())

	prefs, err := e.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading preferences: %w", err)
	}

	weights := make(map[string]int, len(prefs))
	positive := false
	for cat, score := range prefs {
		if score == 0 || !e.tax.Has(cat) {
			continue
		}
		weights[cat] = score
		if score > 0 {
			positive = true
		}
	}
	if !positive {
		return []string{}, nil
	}

	scored, err := e.store.ContentScores(ctx, weights)
	if err != nil {
		return nil, fmt.Errorf("scoring articles: %w", err)
	}

	titles := make([]string, len(scored))
	for i, s := range scored {
		titles[i] = s.Title
	}
	return titles, nil
}

func observe(ranker string, start time.Time) {
	metrics.RecommendDuration.WithLabelValues(ranker).Observe(time.Since(start).Seconds())
}
