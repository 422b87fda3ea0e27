package db

import (
	"context"
	"database/sql"
)

// MigrateUp creates the posts table and its indexes. Every statement is
// idempotent.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS posts (
    id           BIGSERIAL PRIMARY KEY,
    author_id    TEXT NOT NULL,
    title        VARCHAR(200) NOT NULL,
    body         TEXT NOT NULL,
    status       VARCHAR(20) NOT NULL DEFAULT 'draft'
                 CHECK (status IN ('draft', 'published')),
    published_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	indexes := []string{
		// ORDER BY created_at DESC, id DESC で使用(一覧取得)
		`CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC, id DESC)`,
		// 著者別の投稿取得用
		`CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id)`,
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}
