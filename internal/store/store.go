// Package store keeps a history of optimization runs.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/efl/internal/config"
	"github.com/sells-group/efl/internal/model"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = eris.New("store: run not found")

// Run is one saved optimization. ListRuns leaves Result nil.
type Run struct {
	ID           string            `json:"id"`
	Variant      model.Variant     `json:"variant"`
	Status       model.SolveStatus `json:"status"`
	Objective    float64           `json:"objective"`
	NumLocations int               `json:"num_locations"`
	Result       *model.Result     `json:"result,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Variant *model.Variant    `json:"variant,omitempty"`
	Status  model.SolveStatus `json:"status,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Offset  int               `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store defines the persistence interface for run history.
type Store interface {
	SaveRun(ctx context.Context, res *model.Result) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// newRun derives the indexed columns of a run from its result.
func newRun(id string, res *model.Result, now time.Time) (*Run, []byte, error) {
	if res == nil {
		return nil, nil, eris.New("store: nil result")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal result")
	}
	return &Run{
		ID:           id,
		Variant:      res.Params.Variant,
		Status:       res.Summary.Status,
		Objective:    res.Summary.Objective,
		NumLocations: res.Summary.NumLocationsOut,
		Result:       res,
		CreatedAt:    now,
	}, data, nil
}

func decodeResult(data []byte) (*model.Result, error) {
	var res model.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal result")
	}
	return &res, nil
}
