package database

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
)

const articleColumns = "id, title, content, url, fetched_at"

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertArticle stores a new article keyed by its title. When an article with
// the same title already exists, its ID is returned and created is false.
func (db *DB) InsertArticle(ctx context.Context, title, content, url string) (id int64, created bool, err error) {
	return insertArticle(ctx, db.conn, title, content, url)
}

// InsertArticle is DB.InsertArticle inside tx, so the row only becomes
// visible together with the rest of the transaction.
func (tx *Tx) InsertArticle(ctx context.Context, title, content, url string) (id int64, created bool, err error) {
	return insertArticle(ctx, tx.tx, title, content, url)
}

func insertArticle(ctx context.Context, q execQuerier, title, content, url string) (int64, bool, error) {
	var urlArg any
	if url != "" {
		urlArg = url
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO articles (title, content, url) VALUES (?, ?, ?)
		ON CONFLICT(title) DO NOTHING`,
		title, content, urlArg,
	)
	if err != nil {
		return 0, false, wrap("insert article", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, wrap("insert article", err)
	}
	if n == 0 {
		id, err := articleIDByTitle(ctx, q, title)
		return id, false, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, wrap("insert article", err)
	}
	return id, true, nil
}

// GetArticleIDByTitle looks up an article by exact title.
// Returns ErrNotFound when no article has that title.
func (db *DB) GetArticleIDByTitle(ctx context.Context, title string) (int64, error) {
	return articleIDByTitle(ctx, db.conn, title)
}

func articleIDByTitle(ctx context.Context, q execQuerier, title string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM articles WHERE title = ?", title).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, wrap("get article by title", err)
	}
	return id, nil
}

// GetArticle returns a single article by ID.
func (db *DB) GetArticle(ctx context.Context, id int64) (*Article, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+articleColumns+" FROM articles WHERE id = ?", id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get article", err)
	}
	return a, nil
}

// ListArticles returns all articles ordered by ID.
func (db *DB) ListArticles(ctx context.Context) ([]Article, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+articleColumns+" FROM articles ORDER BY id")
	if err != nil {
		return nil, wrap("list articles", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, wrap("list articles", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list articles", err)
	}
	return articles, nil
}

// ListTitles returns every article title ordered by ID.
func (db *DB) ListTitles(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT title FROM articles ORDER BY id")
	if err != nil {
		return nil, wrap("list titles", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, wrap("list titles", err)
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list titles", err)
	}
	return titles, nil
}

// TitlesByIDs maps article IDs onto titles. Unknown IDs are absent from the result.
func (db *DB) TitlesByIDs(ctx context.Context, ids []int64) (map[int64]string, error) {
	titles := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}

	query, args, err := psql.Select("id", "title").From("articles").
		Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, wrap("titles by ids", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("titles by ids", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var t string
		if err := rows.Scan(&id, &t); err != nil {
			return nil, wrap("titles by ids", err)
		}
		titles[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("titles by ids", err)
	}
	return titles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(r rowScanner) (*Article, error) {
	var a Article
	var url, fetchedAt sql.NullString
	if err := r.Scan(&a.ID, &a.Title, &a.Content, &url, &fetchedAt); err != nil {
		return nil, err
	}
	if url.Valid {
		a.URL = &url.String
	}
	if fetchedAt.Valid {
		a.FetchedAt = &fetchedAt.String
	}
	return &a, nil
}
