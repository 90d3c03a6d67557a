package recommend

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/TobiSchelling/newsrank/internal/database"
)

// Matrix maps user ID → article ID → accumulated interaction.
type Matrix map[int64]map[int64]float64

// BuildMatrix groups interaction rows by user.
func BuildMatrix(rows []database.Interaction) Matrix {
	m := make(Matrix)
	for _, r := range rows {
		v := m[r.UserID]
		if v == nil {
			v = make(map[int64]float64)
			m[r.UserID] = v
		}
		v[r.ArticleID] = r.Interaction
	}
	return m
}

// CosineSimilarity compares user a against user b. The dot product and a's
// norm run over a's articles only; b's norm covers b's whole vector, so the
// measure is not symmetric. A zero norm on either side yields 0.
func CosineSimilarity(a, b map[int64]float64) float64 {
	var dot, normA, normB float64
	for id, va := range a {
		dot += va * b[id]
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type articleScore struct {
	id    int64
	score float64
}

// collaborativeScores projects every neighbour's interactions onto the
// articles the target has not interacted with, weighted by similarity.
func collaborativeScores(m Matrix, userID int64) []articleScore {
	target := m[userID]
	if len(target) == 0 {
		return nil
	}

	// Visit neighbours in ID order so float sums are reproducible.
	neighbours := make([]int64, 0, len(m))
	for id := range m {
		if id != userID {
			neighbours = append(neighbours, id)
		}
	}
	slices.Sort(neighbours)

	acc := make(map[int64]float64)
	for _, nid := range neighbours {
		vec := m[nid]
		sim := CosineSimilarity(target, vec)
		if sim == 0 {
			continue
		}

		articles := make([]int64, 0, len(vec))
		for aid := range vec {
			articles = append(articles, aid)
		}
		slices.Sort(articles)

		for _, aid := range articles {
			if _, seen := target[aid]; seen {
				continue
			}
			acc[aid] += sim * vec[aid]
		}
	}

	out := make([]articleScore, 0, len(acc))
	for id, s := range acc {
		out = append(out, articleScore{id: id, score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	return out
}

// RankCollaborative returns up to topN titles recommended from similar
// users' interactions. Ties keep article ID order. A user without
// interactions, or topN ≤ 0, yields an empty ranking.
func (e *Engine) RankCollaborative(ctx context.Context, userID int64, topN int) ([]string, error) {
	defer observe("collaborative", time.Now())

	if topN <= 0 {
		return []string{}, nil
	}

	rows, err := e.store.AllInteractions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading interactions: %w", err)
	}

	scored := collaborativeScores(BuildMatrix(rows), userID)
	if len(scored) > topN {
		scored = scored[:topN]
	}
	if len(scored) == 0 {
		return []string{}, nil
	}

	ids := make([]int64, len(scored))
	for i, s := range scored {
		ids[i] = s.id
	}
	titles, err := e.store.TitlesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving titles: %w", err)
	}

	out := make([]string, 0, len(scored))
	for _, s := range scored {
		if t, ok := titles[s.id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}
