package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"datapipe/console/internal/jobs"
	"datapipe/console/internal/params"
)

// Store persists the parameter set last submitted per job type, so a page
// can be pre-filled with the user's previous settings.
type Store struct {
	db *sql.DB
}

// Open connects to the settings database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the settings table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS last_settings (
		page TEXT PRIMARY KEY,
		params JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("ensure settings schema: %w", err)
	}
	return nil
}

// Save upserts the parameter set last submitted for a job type.
func (s *Store) Save(ctx context.Context, page jobs.Type, p params.Params) error {
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO last_settings (page, params, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (page) DO UPDATE SET params = EXCLUDED.params, updated_at = NOW()`,
		string(page), encoded)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Load returns the last-saved parameter set for a job type, or nil when
// nothing has been saved yet.
func (s *Store) Load(ctx context.Context, page jobs.Type) (params.Params, error) {
	var encoded []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT params FROM last_settings WHERE page = $1`, string(page)).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var p params.Params
	if err := json.Unmarshal(encoded, &p); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return p, nil
}
