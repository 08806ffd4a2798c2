// Package optimize runs one facility location optimization end to end:
// distance join, radius filter, model build, solve and result assembly.
package optimize

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/builder"
	"github.com/sells-group/efl/internal/config"
	"github.com/sells-group/efl/internal/mip"
	"github.com/sells-group/efl/internal/model"
	"github.com/sells-group/efl/internal/pairs"
	"github.com/sells-group/efl/internal/result"
	"github.com/sells-group/efl/internal/solver"
)

// violationTol is the relative tolerance used when re-checking a returned
// solution against the model.
const violationTol = 1e-6

// maxReportedViolations caps the violations copied into warnings.
const maxReportedViolations = 5

// Data is the validated input of a run.
type Data struct {
	Origins      []model.Origin
	Destinations []model.Destination
	Lookup       []model.DistanceLookup
}

// Optimizer runs optimizations against one solver backend.
type Optimizer struct {
	solver solver.Solver
	cfg    config.SolverConfig
}

// New creates an Optimizer. cfg supplies default limits and the
// acceptance policy.
func New(cfg config.SolverConfig, s solver.Solver) *Optimizer {
	return &Optimizer{solver: s, cfg: cfg}
}

// Run executes a single optimization. Typed errors from the model package
// (InvalidParamsError, InfeasibleError, SolverError, MissingDistanceError)
// are returned unwrapped.
func (o *Optimizer) Run(ctx context.Context, data Data, p model.Params) (*model.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Solver != "" && p.Solver != o.solver.Name() {
		return nil, &model.InvalidParamsError{
			Field:  "Solver",
			Reason: fmt.Sprintf("%q requested but this optimizer runs %q", p.Solver, o.solver.Name()),
		}
	}

	log := zap.L().With(
		zap.String("component", "optimize"),
		zap.String("variant", p.Variant.String()),
		zap.String("solver", o.solver.Name()),
	)
	start := time.Now()

	joined, err := pairs.Join(data.Origins, data.Destinations, data.Lookup)
	if err != nil {
		return nil, err
	}

	filtered, err := pairs.ApplyRadius(data.Origins, data.Destinations, joined, p.Radius)
	if err != nil {
		return nil, err
	}
	warnings := append([]string(nil), filtered.Warnings...)
	warnings = append(warnings, forcedDropped(data.Destinations, filtered.Destinations)...)

	in := builder.Input{
		Origins:      data.Origins,
		Destinations: filtered.Destinations,
		Pairs:        filtered.Pairs,
	}
	spec, err := builder.Build(in, p)
	if err != nil {
		return nil, err
	}
	log.Info("optimize: model built",
		zap.Int("origins", len(in.Origins)),
		zap.Int("destinations", len(in.Destinations)),
		zap.Int("pairs", len(in.Pairs)),
		zap.Int("variables", spec.Model.NumVars()),
		zap.Int("constraints", len(spec.Model.Constraints)),
		zap.Float64("alpha", spec.Alpha),
		zap.Float64("kappa", spec.Kappa),
	)

	out, err := o.solver.Solve(ctx, spec.Model, o.options(p))
	if err != nil {
		return nil, eris.Wrapf(err, "optimize: solve with %s", o.solver.Name())
	}
	log.Info("optimize: solver finished",
		zap.String("status", string(out.Status)),
		zap.Float64("primal", out.PrimalBound),
		zap.Float64("dual", out.DualBound),
		zap.Duration("wall_time", out.WallTime),
	)
	if err := solver.Accept(o.solver.Name(), out, o.cfg.AcceptFeasible); err != nil {
		return nil, err
	}

	if o.cfg.CheckSolution {
		if v := spec.Model.Violations(out.Values, violationTol); len(v) > 0 {
			log.Warn("optimize: solution violates model constraints", zap.Int("count", len(v)), zap.Strings("first", head(v)))
			warnings = append(warnings, fmt.Sprintf("solution violates %d model constraints: %v", len(v), head(v)))
		}
	}

	res, err := result.Assemble(spec, in, p, out)
	if err != nil {
		return nil, err
	}
	res.Params.Solver = o.solver.Name()
	res.Warnings = append(warnings, res.Warnings...)

	for _, w := range res.Warnings {
		log.Warn("optimize: " + w)
	}
	fields := []zap.Field{
		zap.Int("opened", len(res.Summary.OpenedDestinations)),
		zap.Float64("objective", res.Summary.Objective),
		zap.Duration("elapsed", time.Since(start)),
	}
	if res.Summary.EDEOut != nil {
		fields = append(fields, zap.Float64("ede", *res.Summary.EDEOut))
	}
	log.Info("optimize: complete", fields...)
	return res, nil
}

// options merges per-run limits over the configured defaults. Zero config
// values mean no limit.
func (o *Optimizer) options(p model.Params) mip.Options {
	opts := mip.Options{TimeLimit: p.TimeLimit, MIPGap: p.MIPGap}
	if opts.TimeLimit == nil && o.cfg.TimeLimitSecs > 0 {
		opts.TimeLimit = model.Float(o.cfg.TimeLimitSecs)
	}
	if opts.MIPGap == nil && o.cfg.MIPGap > 0 {
		opts.MIPGap = model.Float(o.cfg.MIPGap)
	}
	return opts
}

// forcedDropped warns about forced-open destinations the radius filter
// removed. They cannot be opened once they serve no origin.
func forcedDropped(all, kept []model.Destination) []string {
	keep := make(map[string]bool, len(kept))
	for _, d := range kept {
		keep[d.ID] = true
	}
	var out []string
	for _, d := range all {
		if d.Open == model.OpenForced && !keep[d.ID] {
			out = append(out, fmt.Sprintf("forced-open destination %q is beyond the radius of every origin and was dropped", d.ID))
		}
	}
	return out
}

func head(v []string) []string {
	if len(v) > maxReportedViolations {
		return v[:maxReportedViolations]
	}
	return v
}
