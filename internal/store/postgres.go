package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/efl/internal/db"
	"github.com/sells-group/efl/internal/model"
)

// PostgresStore implements Store using pgxpool. Besides the JSON result it
// copies each run's assignments into run_assignments for ad hoc queries.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var assignmentColumns = []string{"run_id", "origin", "destination", "distance", "population", "covered"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	variant       TEXT NOT NULL,
	status        TEXT NOT NULL,
	objective     DOUBLE PRECISION NOT NULL DEFAULT 0,
	num_locations INTEGER NOT NULL DEFAULT 0,
	result        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_assignments (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	origin      TEXT NOT NULL,
	destination TEXT,
	distance    DOUBLE PRECISION,
	population  DOUBLE PRECISION NOT NULL,
	covered     BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, origin)
);

CREATE INDEX IF NOT EXISTS idx_runs_variant ON runs(variant);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_assignments_destination ON run_assignments(destination);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, res *model.Result) (*Run, error) {
	run, data, err := newRun(uuid.New().String(), res, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	fail := func(err error) (*Run, error) {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO runs (id, variant, status, objective, num_locations, result, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Variant.String(), string(run.Status), run.Objective, run.NumLocations, data, run.CreatedAt,
	); err != nil {
		return fail(eris.Wrap(err, "postgres: insert run"))
	}

	rows := make([][]any, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		var dest *string
		var dist *float64
		if a.Covered {
			dest = &a.DestinationID
			dist = model.Float(a.Distance)
		}
		rows = append(rows, []any{run.ID, a.OriginID, dest, dist, a.Population, a.Covered})
	}
	if _, err := db.CopyFrom(ctx, tx, "run_assignments", assignmentColumns, rows); err != nil {
		return fail(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit")
	}
	return run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var data []byte
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT id, variant, status, objective, num_locations, created_at, result FROM runs WHERE id = $1`,
		id,
	), &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	if r.Result, err = decodeResult(data); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, variant, status, objective, num_locations, created_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Variant != nil {
		query += fmt.Sprintf(` AND variant = $%d`, argIdx)
		args = append(args, filter.Variant.String())
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
