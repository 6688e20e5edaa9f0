package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cart_states (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const sqliteUpsert = `
INSERT INTO cart_states (id, state, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`

// SQLite stores states in a cart_states table.
type SQLite struct {
	db    *sql.DB
	clock func() time.Time
}

// NewSQLite opens the database at dsn (a file path or ":memory:") and
// creates the schema.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer. A single connection serialises writes and
	// keeps an in-memory database alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	return &SQLite{db: db, clock: time.Now}, nil
}

func (s *SQLite) Load(ctx context.Context, id string) (string, bool, error) {
	if err := checkID(id); err != nil {
		return "", false, err
	}

	var state string

	err := s.db.QueryRowContext(ctx, "SELECT state FROM cart_states WHERE id = ?", id).Scan(&state)
	if err == sql.ErrNoRows { //nolint:errorlint
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("sqlite: failed to load cart %s: %w", id, err)
	}

	return state, true, nil
}

func (s *SQLite) Save(ctx context.Context, id, state string) error {
	if err := checkID(id); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, sqliteUpsert, id, state, s.clock().UTC()); err != nil {
		return fmt.Errorf("sqlite: failed to save cart %s: %w", id, err)
	}

	return nil
}

func (s *SQLite) List(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, state FROM cart_states")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list carts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)

	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, fmt.Errorf("sqlite: failed to list carts: %w", err)
		}

		out[id] = state
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to list carts: %w", err)
	}

	return out, nil
}

// UpdatedAt returns when id was last saved.
func (s *SQLite) UpdatedAt(ctx context.Context, id string) (time.Time, bool, error) {
	var updated time.Time

	err := s.db.QueryRowContext(ctx, "SELECT updated_at FROM cart_states WHERE id = ?", id).Scan(&updated)
	if err == sql.ErrNoRows { //nolint:errorlint
		return time.Time{}, false, nil
	}

	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite: failed to load cart %s: %w", id, err)
	}

	return updated, true, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
