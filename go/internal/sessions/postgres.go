package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/sqlutil"
)

// DB is the subset of pgxpool.Pool the store uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS session_codes (
    code         TEXT PRIMARY KEY,
    presenter_id TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS session_codes_presenter_id_idx ON session_codes (presenter_id);
`

const uniqueViolation = "23505"

// PostgresStore keeps session codes in Postgres
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on the given pool
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the session_codes table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create session_codes schema: %w", err)
	}
	return nil
}

// Create stores the code for the presenter, replacing any code they held before
func (s *PostgresStore) Create(ctx context.Context, code, presenterID string) (*Session, error) {
	var session Session
	err := sqlutil.Run(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM session_codes WHERE presenter_id = $1`, presenterID); err != nil {
			return fmt.Errorf("failed to delete previous session code: %w", err)
		}

		err := tx.QueryRow(ctx, `
        INSERT INTO session_codes (code, presenter_id)
        VALUES ($1, $2)
        RETURNING code, presenter_id, created_at
    `, code, presenterID).Scan(&session.Code, &session.PresenterID, &session.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrCodeTaken
			}
			return fmt.Errorf("failed to insert session code: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *PostgresStore) Get(ctx context.Context, code string) (*Session, error) {
	return s.getOne(ctx, `
        SELECT code, presenter_id, created_at
        FROM session_codes
        WHERE code = $1
    `, code)
}

func (s *PostgresStore) GetByPresenter(ctx context.Context, presenterID string) (*Session, error) {
	return s.getOne(ctx, `
        SELECT code, presenter_id, created_at
        FROM session_codes
        WHERE presenter_id = $1
        ORDER BY created_at DESC
        LIMIT 1
    `, presenterID)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg string) (*Session, error) {
	var session Session
	err := s.db.QueryRow(ctx, query, arg).Scan(&session.Code, &session.PresenterID, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session code: %w", err)
	}
	return &session, nil
}
