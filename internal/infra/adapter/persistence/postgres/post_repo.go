// Package postgres implements the repositories on top of database/sql.
// Every statement runs through the retry executor under the "database"
// circuit breaker.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/internal/domain/entity"
	"inkwell/internal/observability/metrics"
	"inkwell/internal/repository"
	"inkwell/internal/resilience/circuitbreaker"
	"inkwell/internal/resilience/retry"
)

type PostRepo struct {
	db       *sql.DB
	executor *retry.Executor
	readCfg  retry.Config
	writeCfg retry.Config
}

// NewPostRepo creates a PostRepo. A nil executor runs statements with a
// single attempt and no breaker.
func NewPostRepo(db *sql.DB, executor *retry.Executor) repository.PostRepository {
	if executor == nil {
		executor = retry.NewExecutor(nil)
	}
	writeCfg := retry.DBConfig()
	writeCfg.RetryCondition = isSafeWriteRetry
	return &PostRepo{
		db:       db,
		executor: executor,
		readCfg:  retry.DBConfig(),
		writeCfg: writeCfg,
	}
}

// isSafeWriteRetry only retries inserts that never reached the server or
// were rolled back by it.
func isSafeWriteRetry(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func (repo *PostRepo) List(ctx context.Context, offset, limit int) ([]*entity.Post, error) {
	const query = `
SELECT id, author_id, title, body, status, published_at, created_at
FROM posts
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`

	start := time.Now()
	posts, err := retry.DoValue(ctx, repo.executor, circuitbreaker.NameDatabase, repo.readCfg,
		func(ctx context.Context) ([]*entity.Post, error) {
			rows, err := repo.db.QueryContext(ctx, query, limit, offset)
			if err != nil {
				return nil, err
			}
			defer func() { _ = rows.Close() }()

			// パフォーマンス最適化: メモリ再割り当てを削減するため事前割り当て
			out := make([]*entity.Post, 0, limit)
			for rows.Next() {
				p, err := scanPost(rows)
				if err != nil {
					return nil, fmt.Errorf("Scan: %w", err)
				}
				out = append(out, p)
			}
			return out, rows.Err()
		})
	metrics.RecordDBQuery("select_posts", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return posts, nil
}

func (repo *PostRepo) Count(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM posts`

	start := time.Now()
	total, err := retry.DoValue(ctx, repo.executor, circuitbreaker.NameDatabase, repo.readCfg,
		func(ctx context.Context) (int64, error) {
			var n int64
			err := repo.db.QueryRowContext(ctx, query).Scan(&n)
			return n, err
		})
	metrics.RecordDBQuery("count_posts", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return total, nil
}

func (repo *PostRepo) Get(ctx context.Context, id int64) (*entity.Post, error) {
	const query = `
SELECT id, author_id, title, body, status, published_at, created_at
FROM posts
WHERE id = $1
LIMIT 1`

	start := time.Now()
	// A missing row is a successful call as far as the breaker is concerned.
	post, err := retry.DoValue(ctx, repo.executor, circuitbreaker.NameDatabase, repo.readCfg,
		func(ctx context.Context) (*entity.Post, error) {
			p, err := scanPost(repo.db.QueryRowContext(ctx, query, id))
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return p, err
		})
	metrics.RecordDBQuery("select_post", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return post, nil
}

func (repo *PostRepo) Create(ctx context.Context, post *entity.Post) error {
	const query = `
INSERT INTO posts (author_id, title, body, status, published_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`

	start := time.Now()
	err := repo.executor.Do(ctx, circuitbreaker.NameDatabase, repo.writeCfg, func(ctx context.Context) error {
		return repo.db.QueryRowContext(ctx, query,
			post.AuthorID, post.Title, post.Body, post.Status, nullTime(post.PublishedAt),
		).Scan(&post.ID, &post.CreatedAt)
	})
	metrics.RecordDBQuery("insert_post", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*entity.Post, error) {
	var (
		p         entity.Post
		published sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &p.Status, &published, &p.CreatedAt); err != nil {
		return nil, err
	}
	if published.Valid {
		t := published.Time
		p.PublishedAt = &t
	}
	return &p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
