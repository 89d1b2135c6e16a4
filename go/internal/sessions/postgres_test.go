package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.values[0].(string)
	*dest[1].(*string) = r.values[1].(string)
	*dest[2].(*time.Time) = r.values[2].(time.Time)
	return nil
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.db.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.db.rolledBack = true
	return nil
}

type fakeDB struct {
	row        fakeRow
	execs      []string
	committed  bool
	rolledBack bool
}

func (d *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (d *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return d.row
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: d}, nil
}

func TestPostgresCreateReplacesPreviousCode(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{"ABC123", "teacher-1", created}}}
	store := NewPostgresStore(db)

	session, err := store.Create(context.Background(), "ABC123", "teacher-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Code != "ABC123" || session.PresenterID != "teacher-1" || !session.CreatedAt.Equal(created) {
		t.Fatalf("unexpected session %+v", session)
	}
	if len(db.execs) != 1 || !db.committed || db.rolledBack {
		t.Fatalf("expected delete then commit, execs=%d committed=%v", len(db.execs), db.committed)
	}
}

func TestPostgresCreateCodeTaken(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: &pgconn.PgError{Code: uniqueViolation}}}
	store := NewPostgresStore(db)

	if _, err := store.Create(context.Background(), "ABC123", "teacher-2"); !errors.Is(err, ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}
	if db.committed || !db.rolledBack {
		t.Fatal("failed insert must roll back the delete")
	}
}

func TestPostgresGetNotFound(t *testing.T) {
	store := NewPostgresStore(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
	if _, err := store.Get(context.Background(), "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
