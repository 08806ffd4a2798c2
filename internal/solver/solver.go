// Package solver runs built models through an external MIP solver binary.
package solver

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/efl/internal/config"
	"github.com/sells-group/efl/internal/mip"
	"github.com/sells-group/efl/internal/model"
)

// Solver solves a model within the given limits. A returned error means
// the solver could not be run; termination statuses are reported in the
// Outcome.
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *mip.Model, opts mip.Options) (*mip.Outcome, error)
}

// Backend names.
const (
	BackendSCIP   = "scip"
	BackendGurobi = "gurobi"
)

// optionNames maps the uniform (time limit, gap) pair to native keys.
var optionNames = map[string][2]string{
	BackendSCIP:   {"limits/time", "limits/gap"},
	BackendGurobi: {"TimeLimit", "MIPGap"},
}

// NewSolver creates a Solver based on config.
func NewSolver(cfg config.SolverConfig) (Solver, error) {
	switch cfg.Backend {
	case BackendSCIP, "":
		return NewSCIP(cfg.SCIPPath, cfg.KeepFiles), nil
	case BackendGurobi:
		return NewGurobi(cfg.GurobiPath, cfg.KeepFiles), nil
	default:
		return nil, eris.Errorf("solver: unknown backend %q", cfg.Backend)
	}
}

// OptionKeys returns the native time limit and gap option names.
func OptionKeys(backend string) (timeKey, gapKey string, err error) {
	keys, ok := optionNames[backend]
	if !ok {
		return "", "", eris.Errorf("solver: unknown backend %q", backend)
	}
	return keys[0], keys[1], nil
}

// NativeOptions renders opts with the backend's option names. Unset limits
// are omitted.
func NativeOptions(backend string, opts mip.Options) ([][2]string, error) {
	timeKey, gapKey, err := OptionKeys(backend)
	if err != nil {
		return nil, err
	}
	var out [][2]string
	if opts.TimeLimit != nil {
		out = append(out, [2]string{timeKey, strconv.FormatFloat(*opts.TimeLimit, 'g', -1, 64)})
	}
	if opts.MIPGap != nil {
		out = append(out, [2]string{gapKey, strconv.FormatFloat(*opts.MIPGap, 'g', -1, 64)})
	}
	return out, nil
}

// Accept applies the acceptance policy to an outcome. Only optimal
// solutions are accepted unless acceptFeasible allows an incumbent found
// before a limit was hit.
func Accept(backend string, out *mip.Outcome, acceptFeasible bool) error {
	switch {
	case out.Status == model.StatusOptimal:
		return nil
	case out.Status == model.StatusFeasible && acceptFeasible:
		return nil
	case out.Status == model.StatusFeasible:
		return &model.SolverError{Backend: backend, Status: out.Status, Detail: "stopped with a feasible, unproven solution; set solver.accept_feasible to use it"}
	default:
		return &model.SolverError{Backend: backend, Status: out.Status}
	}
}
