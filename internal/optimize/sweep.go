package optimize

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/efl/internal/model"
)

// Scenario is one named parameter set of a sweep.
type Scenario struct {
	Name   string       `yaml:"name" json:"name"`
	Params model.Params `yaml:",inline" json:"params"`
}

// ScenarioResult is the outcome of one scenario. Exactly one of Result and
// Err is set.
type ScenarioResult struct {
	Scenario Scenario
	Result   *model.Result
	Err      error
}

// Sweep runs every scenario against the same data with at most limit
// concurrent solves. A failing scenario is recorded and does not stop the
// others; only context cancellation aborts the sweep.
func (o *Optimizer) Sweep(ctx context.Context, data Data, scenarios []Scenario, limit int) ([]ScenarioResult, error) {
	if limit < 1 {
		limit = 1
	}
	log := zap.L().With(zap.String("component", "sweep"), zap.Int("scenarios", len(scenarios)), zap.Int("limit", limit))
	log.Info("sweep: starting")

	results := make([]ScenarioResult, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, sc := range scenarios {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := o.Run(gctx, data, sc.Params)
			results[i] = ScenarioResult{Scenario: sc, Result: res, Err: err}
			if err != nil {
				log.Warn("sweep: scenario failed", zap.String("scenario", sc.Name), zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	log.Info("sweep: complete")
	return results, nil
}
