// Package ledger applies user feedback to category preferences and
// per-article interaction scores.
//
// Every operation on one user runs under that user's mutex and commits its
// preference and interaction writes in a single transaction. Operations on
// different users never wait on each other.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/TobiSchelling/newsrank/internal/database"
	"github.com/TobiSchelling/newsrank/internal/logging"
	"github.com/TobiSchelling/newsrank/internal/metrics"
)

var (
	// ErrInvalidRating is returned by Rate for ratings outside 1..10.
	ErrInvalidRating = errors.New("rating must be between 1 and 10")
	// ErrArticleNotFound is returned when feedback names an unknown article.
	ErrArticleNotFound = errors.New("article not found")
)

// Rating bounds and the neutral point.
const (
	MinRating     = 1
	MaxRating     = 10
	NeutralRating = 6
)

// Interaction weights per feedback kind.
const (
	viewInteraction    = 1.0
	likeInteraction    = 5.0
	dislikeInteraction = -5.0
	skipInteraction    = -1.0
)

// Kind names a feedback operation.
type Kind string

const (
	KindView    Kind = "view"
	KindLike    Kind = "like"
	KindDislike Kind = "dislike"
	KindSkip    Kind = "skip"
	KindRate    Kind = "rate"
)

// Store is the persistence used by the ledger.
type Store interface {
	WithTx(ctx context.Context, fn func(tx *database.Tx) error) error
	GetPreferences(ctx context.Context, userID int64) (map[string]int, error)
	GetInteraction(ctx context.Context, userID, articleID int64) (float64, error)
}

// Ledger records feedback.
type Ledger struct {
	store Store
	locks sync.Map // user id -> *sync.Mutex
}

// New creates a Ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) lock(userID int64) func() {
	m, _ := l.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// View records that the user opened the article.
func (l *Ledger) View(ctx context.Context, userID, articleID int64) error {
	return l.apply(ctx, KindView, userID, articleID, func(ctx context.Context, tx *database.Tx, _ []database.Classification) (float64, error) {
		return viewInteraction, nil
	})
}

// Like adds twice each classified category's keyword count to the user's preference.
func (l *Ledger) Like(ctx context.Context, userID, articleID int64) error {
	return l.apply(ctx, KindLike, userID, articleID, func(ctx context.Context, tx *database.Tx, cats []database.Classification) (float64, error) {
		for _, c := range matched(cats) {
			if err := tx.AddPreference(ctx, userID, c.Category, 2*c.KeywordCount); err != nil {
				return 0, err
			}
		}
		return likeInteraction, nil
	})
}

// Dislike subtracts twice each classified category's keyword count.
func (l *Ledger) Dislike(ctx context.Context, userID, articleID int64) error {
	return l.apply(ctx, KindDislike, userID, articleID, func(ctx context.Context, tx *database.Tx, cats []database.Classification) (float64, error) {
		for _, c := range matched(cats) {
			if err := tx.AddPreference(ctx, userID, c.Category, -2*c.KeywordCount); err != nil {
				return 0, err
			}
		}
		return dislikeInteraction, nil
	})
}

// Skip lowers every category of the article by one, never below zero. This
// includes categories whose keyword count is zero.
func (l *Ledger) Skip(ctx context.Context, userID, articleID int64) error {
	return l.apply(ctx, KindSkip, userID, articleID, func(ctx context.Context, tx *database.Tx, cats []database.Classification) (float64, error) {
		for _, c := range cats {
			if err := tx.AddPreferenceFloor(ctx, userID, c.Category, -1, 0); err != nil {
				return 0, err
			}
		}
		return skipInteraction, nil
	})
}

// Rate overwrites the preference of every category of the article with the
// keyword count scaled by the rating's multiplier, so zero-count categories
// are reset to 0. Unlike the other operations it replaces the score instead
// of adding to it.
func (l *Ledger) Rate(ctx context.Context, userID, articleID int64, rating int) error {
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	multiplier, interaction := RatingEffect(rating)

	return l.apply(ctx, KindRate, userID, articleID, func(ctx context.Context, tx *database.Tx, cats []database.Classification) (float64, error) {
		for _, c := range cats {
			if err := tx.SetPreference(ctx, userID, c.Category, RatedScore(c.KeywordCount, multiplier)); err != nil {
				return 0, err
			}
		}
		return interaction, nil
	})
}

// RatingEffect returns the preference multiplier and interaction delta of a rating.
func RatingEffect(rating int) (multiplier, interaction float64) {
	r := float64(rating)
	switch {
	case rating == NeutralRating:
		return 1.0, 0
	case rating > NeutralRating:
		return 1 + 0.5*(r-NeutralRating), r - 3
	default:
		return 1 - 0.2*(NeutralRating-r), r - 5
	}
}

// RatedScore is the overwritten preference: count × multiplier rounded half
// away from zero, floored at zero.
func RatedScore(keywordCount int, multiplier float64) int {
	return max(int(math.Round(float64(keywordCount)*multiplier)), 0)
}

// matched drops zero-count rows, for which an additive delta is a no-op.
func matched(cats []database.Classification) []database.Classification {
	out := make([]database.Classification, 0, len(cats))
	for _, c := range cats {
		if c.KeywordCount > 0 {
			out = append(out, c)
		}
	}
	return out
}

type effect func(ctx context.Context, tx *database.Tx, cats []database.Classification) (float64, error)

func (l *Ledger) apply(ctx context.Context, kind Kind, userID, articleID int64, fn effect) error {
	unlock := l.lock(userID)
	defer unlock()

	err := l.store.WithTx(ctx, func(tx *database.Tx) error {
		ok, err := tx.ArticleExists(ctx, articleID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("article %d: %w", articleID, ErrArticleNotFound)
		}

		cats, err := tx.ClassifiedCategories(ctx, articleID)
		if err != nil {
			return err
		}

		delta, err := fn(ctx, tx, cats)
		if err != nil {
			return err
		}
		return tx.AddInteraction(ctx, userID, articleID, delta)
	})
	if err != nil {
		return fmt.Errorf("%s feedback: %w", kind, err)
	}

	metrics.Feedback.WithLabelValues(string(kind)).Inc()
	logging.Debug().Str("kind", string(kind)).Int64("user_id", userID).Int64("article_id", articleID).Msg("feedback recorded")
	return nil
}

// Apply dispatches a feedback kind by name. rating is only used for KindRate.
func (l *Ledger) Apply(ctx context.Context, kind Kind, userID, articleID int64, rating int) error {
	switch kind {
	case KindView:
		return l.View(ctx, userID, articleID)
	case KindLike:
		return l.Like(ctx, userID, articleID)
	case KindDislike:
		return l.Dislike(ctx, userID, articleID)
	case KindSkip:
		return l.Skip(ctx, userID, articleID)
	case KindRate:
		return l.Rate(ctx, userID, articleID, rating)
	default:
		return fmt.Errorf("unknown feedback kind %q", kind)
	}
}

// Preferences returns the user's category scores.
func (l *Ledger) Preferences(ctx context.Context, userID int64) (map[string]int, error) {
	return l.store.GetPreferences(ctx, userID)
}

// Interaction returns the user's accumulated interaction with an article,
// zero when there is none.
func (l *Ledger) Interaction(ctx context.Context, userID, articleID int64) (float64, error) {
	v, err := l.store.GetInteraction(ctx, userID, articleID)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return v, err
}
