package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/efl/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	variant       TEXT NOT NULL,
	status        TEXT NOT NULL,
	objective     REAL NOT NULL DEFAULT 0,
	num_locations INTEGER NOT NULL DEFAULT 0,
	result        TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_variant ON runs(variant);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, res *model.Result) (*Run, error) {
	run, data, err := newRun(uuid.New().String(), res, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, variant, status, objective, num_locations, result, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Variant.String(), string(run.Status), run.Objective, run.NumLocations, string(data), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, variant, status, objective, num_locations, created_at, result FROM runs WHERE id = ?`,
		id,
	)

	var data string
	r, err := scanRun(row, &data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if r.Result, err = decodeResult([]byte(data)); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, variant, status, objective, num_locations, created_at FROM runs WHERE 1=1`
	var args []any

	if filter.Variant != nil {
		query += ` AND variant = ?`
		args = append(args, filter.Variant.String())
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads the indexed columns, plus any extra trailing ones.
func scanRun(row scannable, extra ...any) (*Run, error) {
	var r Run
	var variant, status string
	dest := append([]any{&r.ID, &variant, &status, &r.Objective, &r.NumLocations, &r.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	v, err := model.ParseVariant(variant)
	if err != nil {
		return nil, err
	}
	r.Variant = v
	r.Status = model.SolveStatus(status)
	return &r, nil
}
