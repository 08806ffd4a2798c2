package solver

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/mip"
	"github.com/sells-group/efl/internal/model"
)

// Gurobi solves models with the gurobi_cl command line binary.
type Gurobi struct {
	binPath string
	keep    bool
}

// NewGurobi creates a Gurobi solver. If binPath is empty, "gurobi_cl" is used.
func NewGurobi(binPath string, keepFiles bool) *Gurobi {
	if binPath == "" {
		binPath = "gurobi_cl"
	}
	return &Gurobi{binPath: binPath, keep: keepFiles}
}

// Name implements Solver.
func (g *Gurobi) Name() string { return BackendGurobi }

// Solve runs gurobi_cl [TimeLimit=..] [MIPGap=..] ResultFile=model.sol model.lp.
func (g *Gurobi) Solve(ctx context.Context, m *mip.Model, opts mip.Options) (*mip.Outcome, error) {
	native, err := NativeOptions(BackendGurobi, opts)
	if err != nil {
		return nil, err
	}
	ws, err := newWorkspace(m, g.keep)
	if err != nil {
		return nil, err
	}
	defer ws.close()

	args := make([]string, 0, len(native)+2)
	for _, kv := range native {
		args = append(args, kv[0]+"="+kv[1])
	}
	args = append(args, "ResultFile="+solutionFile, modelFile)

	start := time.Now()
	stdout, err := ws.run(ctx, BackendGurobi, g.binPath, args...)
	if err != nil {
		return nil, err
	}
	out := parseGurobiLog(stdout)
	out.WallTime = time.Since(start)

	values, ok, err := readSolution(ws.path(solutionFile), m)
	if err != nil {
		return nil, err
	}
	if ok {
		out.Values = values
	}
	out.Status = resolveStatus(out.Status, ok)
	if out.Status.HasSolution() && out.Values == nil {
		return nil, eris.Errorf("solver: gurobi reported %s but wrote no solution", out.Status)
	}

	zap.L().Info("solver: gurobi finished",
		zap.String("status", string(out.Status)),
		zap.Float64("primal_bound", out.PrimalBound),
		zap.Float64("dual_bound", out.DualBound),
		zap.Duration("wall_time", out.WallTime),
	)
	return out, nil
}

var gurobiBoundsRe = regexp.MustCompile(`Best objective\s+([^,]+),\s*best bound\s+([^,]+),`)

// parseGurobiLog reads the termination message and the final bounds line.
func parseGurobiLog(log string) *mip.Outcome {
	out := &mip.Outcome{Status: model.StatusUnknown, PrimalBound: math.NaN(), DualBound: math.NaN()}

	lower := strings.ToLower(log)
	switch {
	case strings.Contains(lower, "optimal solution found"):
		out.Status = model.StatusOptimal
	case strings.Contains(lower, "model is infeasible"), strings.Contains(lower, "infeasible model"):
		out.Status = model.StatusInfeasible
	case strings.Contains(lower, "time limit reached"), strings.Contains(lower, "limit reached"), strings.Contains(lower, "interrupted"):
		out.Status = limitStatus
	}

	if m := gurobiBoundsRe.FindStringSubmatch(log); m != nil {
		if v, err := parseNumber(m[1]); err == nil {
			out.PrimalBound = v
		}
		if v, err := parseNumber(m[2]); err == nil {
			out.DualBound = v
		}
	}
	return out
}
