package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Scored is a title with its hybrid score.
type Scored struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Recommend merges the content and collaborative rankings.
func (e *Engine) Recommend(ctx context.Context, userID int64) ([]string, error) {
	scored, err := e.RecommendScored(ctx, userID)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(scored))
	for i, s := range scored {
		titles[i] = s.Title
	}
	return titles, nil
}

// RecommendScored gives every title in the content ranking the content
// weight and every title in the collaborative ranking the collaborative
// weight, summing when a title is in both. Results are ordered by score,
// then title.
func (e *Engine) RecommendScored(ctx context.Context, userID int64) ([]Scored, error) {
	defer observe("hybrid", time.Now())

	content, err := e.RankContent(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("content ranking: %w", err)
	}
	collab, err := e.RankCollaborative(ctx, userID, e.opts.TopN)
	if err != nil {
		return nil, fmt.Errorf("collaborative ranking: %w", err)
	}

	return Merge(content, e.opts.ContentWeight, collab, e.opts.CollaborativeWeight), nil
}

// Merge combines two rankings by membership. A title counts once per list
// even if it repeats within that list.
func Merge(a []string, weightA float64, b []string, weightB float64) []Scored {
	scores := make(map[string]float64, len(a)+len(b))
	add := func(titles []string, w float64) {
		seen := make(map[string]struct{}, len(titles))
		for _, t := range titles {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			scores[t] += w
		}
	}
	add(a, weightA)
	add(b, weightB)

	out := make([]Scored, 0, len(scores))
	for t, s := range scores {
		out = append(out, Scored{Title: t, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Title < out[j].Title
	})
	return out
}
