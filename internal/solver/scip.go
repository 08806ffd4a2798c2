package solver

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/mip"
	"github.com/sells-group/efl/internal/model"
)

const scipSettingsFile = "efl.set"

// SCIP solves models with the scip command line binary.
type SCIP struct {
	binPath string
	keep    bool
}

// NewSCIP creates a SCIP solver. If binPath is empty, "scip" is used.
func NewSCIP(binPath string, keepFiles bool) *SCIP {
	if binPath == "" {
		binPath = "scip"
	}
	return &SCIP{binPath: binPath, keep: keepFiles}
}

// Name implements Solver.
func (s *SCIP) Name() string { return BackendSCIP }

// Solve writes the model and settings to a work dir and runs
//
//	scip [-s efl.set] -c "read model.lp optimize write solution model.sol quit"
func (s *SCIP) Solve(ctx context.Context, m *mip.Model, opts mip.Options) (*mip.Outcome, error) {
	native, err := NativeOptions(BackendSCIP, opts)
	if err != nil {
		return nil, err
	}
	ws, err := newWorkspace(m, s.keep)
	if err != nil {
		return nil, err
	}
	defer ws.close()

	var args []string
	if len(native) > 0 {
		var sb strings.Builder
		for _, kv := range native {
			sb.WriteString(kv[0] + " = " + kv[1] + "\n")
		}
		if err := ws.writeFile(scipSettingsFile, sb.String()); err != nil {
			return nil, err
		}
		args = append(args, "-s", scipSettingsFile)
	}
	args = append(args, "-c", "read "+modelFile+" optimize write solution "+solutionFile+" quit")

	start := time.Now()
	stdout, err := ws.run(ctx, BackendSCIP, s.binPath, args...)
	if err != nil {
		return nil, err
	}
	out := parseSCIPLog(stdout)
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
		return nil, eris.Errorf("solver: scip reported %s but wrote no solution", out.Status)
	}

	zap.L().Info("solver: scip finished",
		zap.String("status", string(out.Status)),
		zap.Float64("primal_bound", out.PrimalBound),
		zap.Float64("dual_bound", out.DualBound),
		zap.Duration("wall_time", out.WallTime),
	)
	return out, nil
}

var (
	scipStatusRe = regexp.MustCompile(`SCIP Status\s*:\s*.*\[(.+)\]`)
	scipPrimalRe = regexp.MustCompile(`Primal Bound\s*:\s*(\S+)(?:\s*\((\d+) solutions?\))?`)
	scipDualRe   = regexp.MustCompile(`Dual Bound\s*:\s*(\S+)`)
)

// limitStatus marks a stop on a resource limit; resolveStatus turns it into
// FEASIBLE or TIMEOUT_NO_SOLUTION depending on whether a solution exists.
const limitStatus model.SolveStatus = "LIMIT"

// parseSCIPLog reads the status and bounds from the solving statistics.
func parseSCIPLog(log string) *mip.Outcome {
	out := &mip.Outcome{Status: model.StatusUnknown, PrimalBound: math.NaN(), DualBound: math.NaN()}

	if m := scipStatusRe.FindStringSubmatch(log); m != nil {
		reason := strings.ToLower(m[1])
		switch {
		case strings.Contains(reason, "optimal solution found"), strings.Contains(reason, "gap limit reached"):
			out.Status = model.StatusOptimal
		case strings.Contains(reason, "infeasible"):
			out.Status = model.StatusInfeasible
		case strings.Contains(reason, "limit"), strings.Contains(reason, "interrupt"):
			out.Status = limitStatus
		}
	}
	if m := scipPrimalRe.FindStringSubmatch(log); m != nil {
		if v, err := parseNumber(m[1]); err == nil {
			out.PrimalBound = v
		}
		if m[2] == "0" {
			out.PrimalBound = math.NaN()
		}
	}
	if m := scipDualRe.FindStringSubmatch(log); m != nil {
		if v, err := parseNumber(m[1]); err == nil {
			out.DualBound = v
		}
	}
	return out
}

func resolveStatus(status model.SolveStatus, hasSolution bool) model.SolveStatus {
	if status != limitStatus {
		return status
	}
	if hasSolution {
		return model.StatusFeasible
	}
	return model.StatusTimeoutNoSolution
}

// parseNumber parses solver numbers, including "+1.5e+02", "inf" and
// SCIP's 1e+20 infinity.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "inf", "infinity", "1e+20", "1.00000000000000e+20":
		if strings.HasPrefix(s, "-") {
			return math.Inf(-1), nil
		}
		return math.Inf(1), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "solver: parse number %q", s)
	}
	return v, nil
}
