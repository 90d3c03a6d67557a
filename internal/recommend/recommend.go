// Package recommend produces per-user reading lists from category
// preferences (content ranking), from the interactions of similar users
// (collaborative ranking), and from a weighted merge of the two.
//
// Rankings are read-only: nothing in this package writes to the store.
package recommend

import (
	"context"

	"github.com/TobiSchelling/newsrank/internal/config"
	"github.com/TobiSchelling/newsrank/internal/database"
	"github.com/TobiSchelling/newsrank/internal/taxonomy"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultWeight = 0.5
	DefaultTopN   = 5
)

// Store is the read side the rankers need.
type Store interface {
	GetPreferences(ctx context.Context, userID int64) (map[string]int, error)
	ContentScores(ctx context.Context, weights map[string]int) ([]database.ScoredArticle, error)
	AllInteractions(ctx context.Context) ([]database.Interaction, error)
	TitlesByIDs(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Options configures an Engine.
type Options struct {
	ContentWeight       float64
	CollaborativeWeight float64
	TopN                int
}

// OptionsFromConfig maps the recommend config section onto engine options.
func OptionsFromConfig(cfg config.Recommend) Options {
	return Options{
		ContentWeight:       cfg.ContentWeight,
		CollaborativeWeight: cfg.CollaborativeWeight,
		TopN:                cfg.TopN,
	}
}

// Engine ranks articles for users.
type Engine struct {
	store Store
	tax   *taxonomy.Taxonomy
	opts  Options
}

// New creates an Engine. When both weights are zero the defaults are used.
func New(store Store, tax *taxonomy.Taxonomy, opts Options) *Engine {
	if opts.ContentWeight == 0 && opts.CollaborativeWeight == 0 {
		opts.ContentWeight = DefaultWeight
		opts.CollaborativeWeight = DefaultWeight
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	return &Engine{store: store, tax: tax, opts: opts}
}
