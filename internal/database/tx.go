package database

import (
	"context"
	"database/sql"
)

// Tx is a write transaction handed out by DB.WithTx.
type Tx struct {
	tx *sql.Tx
}

// ArticleExists reports whether an article with the given ID is stored.
func (tx *Tx) ArticleExists(ctx context.Context, articleID int64) (bool, error) {
	var one int
	err := tx.tx.QueryRowContext(ctx, "SELECT 1 FROM articles WHERE id = ?", articleID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrap("article exists", err)
	}
	return true, nil
}

// ClassifiedCategories returns every classification row of an article,
// zero counts included, ordered by category.
func (tx *Tx) ClassifiedCategories(ctx context.Context, articleID int64) ([]Classification, error) {
	rows, err := tx.tx.QueryContext(ctx,
		`SELECT article_id, category, keyword_count FROM article_classification
		WHERE article_id = ? ORDER BY category`, articleID,
	)
	if err != nil {
		return nil, wrap("classified categories", err)
	}
	defer rows.Close()

	var out []Classification
	for rows.Next() {
		var c Classification
		if err := rows.Scan(&c.ArticleID, &c.Category, &c.KeywordCount); err != nil {
			return nil, wrap("classified categories", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("classified categories", err)
	}
	return out, nil
}

// AddPreference adds delta to a user's category score, creating the row at delta.
func (tx *Tx) AddPreference(ctx context.Context, userID int64, category string, delta int) error {
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, category, score) VALUES (?, ?, ?)
		ON CONFLICT(user_id, category) DO UPDATE SET score = score + excluded.score`,
		userID, category, delta,
	)
	return wrap("add preference", err)
}

// AddPreferenceFloor adds delta to a user's category score without letting it
// drop below floor. A missing row starts from zero.
func (tx *Tx) AddPreferenceFloor(ctx context.Context, userID int64, category string, delta, floor int) error {
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, category, score) VALUES (?, ?, MAX(?, ?))
		ON CONFLICT(user_id, category) DO UPDATE SET score = MAX(score + ?, ?)`,
		userID, category, delta, floor, delta, floor,
	)
	return wrap("add preference", err)
}

// SetPreference overwrites a user's category score.
func (tx *Tx) SetPreference(ctx context.Context, userID int64, category string, score int) error {
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, category, score) VALUES (?, ?, ?)
		ON CONFLICT(user_id, category) DO UPDATE SET score = excluded.score`,
		userID, category, score,
	)
	return wrap("set preference", err)
}

// AddInteraction adds delta to the (user, article) interaction accumulator.
// A zero delta still records that the user interacted with the article.
func (tx *Tx) AddInteraction(ctx context.Context, userID, articleID int64, delta float64) error {
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO user_article_interactions (user_id, article_id, interaction) VALUES (?, ?, ?)
		ON CONFLICT(user_id, article_id) DO UPDATE SET interaction = interaction + excluded.interaction`,
		userID, articleID, delta,
	)
	return wrap("add interaction", err)
}
