package postgres_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/internal/domain/entity"
	pg "inkwell/internal/infra/adapter/persistence/postgres"
	"inkwell/internal/resilience/circuitbreaker"
	"inkwell/internal/resilience/retry"
)

/* ─────────────────────────── ヘルパ ─────────────────────────── */

var postColumns = []string{"id", "author_id", "title", "body", "status", "published_at", "created_at"}

func postRow(rows *sqlmock.Rows, p *entity.Post) *sqlmock.Rows {
	var published any
	if p.PublishedAt != nil {
		published = *p.PublishedAt
	}
	return rows.AddRow(p.ID, p.AuthorID, p.Title, p.Body, p.Status, published, p.CreatedAt)
}

func newExecutor(threshold int) (*retry.Executor, *circuitbreaker.Registry) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: threshold,
		RecoveryTimeout:  time.Hour,
		Logger:           quiet,
	})
	exec := retry.NewExecutor(reg,
		retry.WithLogger(quiet),
		retry.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	return exec, reg
}

/* ─────────────────────────── 1. Get ─────────────────────────── */

func TestPostRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	want := &entity.Post{
		ID: 7, AuthorID: "writer-1", Title: "Marginalia",
		Body: "notes", Status: entity.PostStatusPublished,
		PublishedAt: &now, CreatedAt: now,
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, author_id")).
		WithArgs(int64(7)).
		WillReturnRows(postRow(sqlmock.NewRows(postColumns), want))

	exec, _ := newExecutor(5)
	got, err := pg.NewPostRepo(db, exec).Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostRepo_Get_NotFoundKeepsBreakerClosed(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("FROM posts").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(postColumns))

	exec, reg := newExecutor(1)
	got, err := pg.NewPostRepo(db, exec).Get(context.Background(), 404)
	if err != nil || got != nil {
		t.Fatalf("Get = (%v, %v), want (nil, nil)", got, err)
	}
	if state := reg.Breaker(circuitbreaker.NameDatabase).State(); state != circuitbreaker.StateClosed {
		t.Fatalf("breaker state = %v, want closed", state)
	}
}

/* ─────────────────────────── 2. List / Count ─────────────────────────── */

func TestPostRepo_List(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(postColumns)
	postRow(rows, &entity.Post{ID: 2, AuthorID: "a", Title: "t2", Body: "b", Status: entity.PostStatusDraft, CreatedAt: now})
	postRow(rows, &entity.Post{ID: 1, AuthorID: "a", Title: "t1", Body: "b", Status: entity.PostStatusDraft, CreatedAt: now})

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1 OFFSET $2")).
		WithArgs(int64(20), int64(40)).
		WillReturnRows(rows)

	exec, _ := newExecutor(5)
	got, err := pg.NewPostRepo(db, exec).List(context.Background(), 40, 20)
	if err != nil || len(got) != 2 {
		t.Fatalf("List err=%v len=%d", err, len(got))
	}
	if got[0].PublishedAt != nil {
		t.Errorf("PublishedAt = %v, want nil for a draft", got[0].PublishedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostRepo_Count(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM posts")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	total, err := pg.NewPostRepo(db, nil).Count(context.Background())
	if err != nil || total != 42 {
		t.Fatalf("Count = (%d, %v), want (42, nil)", total, err)
	}
}

/* ─────────────────────────── 3. Create ─────────────────────────── */

func TestPostRepo_Create(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO posts")).
		WithArgs("writer-1", "Title", "Body", entity.PostStatusDraft, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), created))

	exec, _ := newExecutor(5)
	p := &entity.Post{AuthorID: "writer-1", Title: "Title", Body: "Body", Status: entity.PostStatusDraft}
	if err := pg.NewPostRepo(db, exec).Create(context.Background(), p); err != nil {
		t.Fatalf("Create err=%v", err)
	}
	if p.ID != 11 || !p.CreatedAt.Equal(created) {
		t.Fatalf("post = %+v, want ID 11 created %v", p, created)
	}
}

func TestPostRepo_Create_ConstraintViolationNotRetried(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("INSERT INTO posts").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	exec, _ := newExecutor(5)
	err := pg.NewPostRepo(db, exec).Create(context.Background(),
		&entity.Post{AuthorID: "a", Title: "t", Body: "b", Status: entity.PostStatusDraft})

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		t.Fatalf("err = %v, want the unique violation", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ─────────────────────────── 4. Resilience ─────────────────────────── */

func TestPostRepo_RetriesTransientError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	exec, _ := newExecutor(5)
	total, err := pg.NewPostRepo(db, exec).Count(context.Background())
	if err != nil || total != 3 {
		t.Fatalf("Count = (%d, %v), want (3, nil)", total, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostRepo_OpenBreakerSkipsDatabase(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnError(errors.New("relation \"posts\" does not exist"))

	exec, reg := newExecutor(1)
	repo := pg.NewPostRepo(db, exec)

	if _, err := repo.Count(context.Background()); err == nil {
		t.Fatal("first Count should fail")
	}
	if state := reg.Breaker(circuitbreaker.NameDatabase).State(); state != circuitbreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", state)
	}

	_, err := repo.Count(context.Background())
	if !circuitbreaker.IsOpen(err) {
		t.Fatalf("second Count err = %v, want open circuit", err)
	}
	// No second query reached the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
