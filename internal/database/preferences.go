package database

import (
	"context"
	"database/sql"
	"errors"
)

// GetPreferences returns a user's category scores. Categories the user never
// touched are absent.
func (db *DB) GetPreferences(ctx context.Context, userID int64) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT category, score FROM user_preferences WHERE user_id = ?", userID,
	)
	if err != nil {
		return nil, wrap("get preferences", err)
	}
	defer rows.Close()

	prefs := make(map[string]int)
	for rows.Next() {
		var category string
		var score int
		if err := rows.Scan(&category, &score); err != nil {
			return nil, wrap("get preferences", err)
		}
		prefs[category] = score
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("get preferences", err)
	}
	return prefs, nil
}

// GetInteraction returns the accumulated interaction of a user with an article.
// Returns ErrNotFound when the pair has no interaction row.
func (db *DB) GetInteraction(ctx context.Context, userID, articleID int64) (float64, error) {
	var v float64
	err := db.conn.QueryRowContext(ctx,
		"SELECT interaction FROM user_article_interactions WHERE user_id = ? AND article_id = ?",
		userID, articleID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, wrap("get interaction", err)
	}
	return v, nil
}

// AllInteractions returns every interaction row ordered by user then article.
func (db *DB) AllInteractions(ctx context.Context) ([]Interaction, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT user_id, article_id, interaction FROM user_article_interactions ORDER BY user_id, article_id",
	)
	if err != nil {
		return nil, wrap("all interactions", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var i Interaction
		if err := rows.Scan(&i.UserID, &i.ArticleID, &i.Interaction); err != nil {
			return nil, wrap("all interactions", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("all interactions", err)
	}
	return out, nil
}
