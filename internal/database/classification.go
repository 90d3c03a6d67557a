package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"
)

// SaveClassification replaces the stored category counts of an article in a
// single transaction. Rows for categories absent from counts are removed.
func (db *DB) SaveClassification(ctx context.Context, articleID int64, counts []Classification) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		return tx.SaveClassification(ctx, articleID, counts)
	})
}

// SaveClassification upserts every (article, category) count inside tx.
func (tx *Tx) SaveClassification(ctx context.Context, articleID int64, counts []Classification) error {
	categories := make([]string, 0, len(counts))

	for _, c := range counts {
		query, args, err := psql.Insert("article_classification").
			Columns("article_id", "category", "keyword_count").
			Values(articleID, c.Category, c.KeywordCount).
			Suffix("ON CONFLICT(article_id, category) DO UPDATE SET keyword_count = excluded.keyword_count").
			ToSql()
		if err != nil {
			return wrap("save classification", err)
		}
		if _, err := tx.tx.ExecContext(ctx, query, args...); err != nil {
			return wrap("save classification", err)
		}
		categories = append(categories, c.Category)
	}

	del := psql.Delete("article_classification").Where(sq.Eq{"article_id": articleID})
	if len(categories) > 0 {
		del = del.Where(sq.NotEq{"category": categories})
	}
	query, args, err := del.ToSql()
	if err != nil {
		return wrap("save classification", err)
	}
	if _, err := tx.tx.ExecContext(ctx, query, args...); err != nil {
		return wrap("save classification", err)
	}
	return nil
}

// GetClassification returns every stored category count of an article,
// including zero counts, ordered by category name.
func (db *DB) GetClassification(ctx context.Context, articleID int64) ([]Classification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT article_id, category, keyword_count FROM article_classification
		WHERE article_id = ? ORDER BY category`, articleID,
	)
	if err != nil {
		return nil, wrap("get classification", err)
	}
	defer rows.Close()

	var out []Classification
	for rows.Next() {
		var c Classification
		if err := rows.Scan(&c.ArticleID, &c.Category, &c.KeywordCount); err != nil {
			return nil, wrap("get classification", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("get classification", err)
	}
	return out, nil
}
