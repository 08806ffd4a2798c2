package solver

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/efl/internal/mip"
	"github.com/sells-group/efl/internal/model"
)

func TestParseGurobiLog(t *testing.T) {
	out := parseGurobiLog(`
Explored 1 nodes (3 simplex iterations) in 0.01 seconds
Optimal solution found (tolerance 1.00e-04)
Best objective 3.000000000000e+00, best bound 2.900000000000e+00, gap 3.3333%
`)
	assert.Equal(t, model.StatusOptimal, out.Status)
	assert.InDelta(t, 3.0, out.PrimalBound, 0)
	assert.InDelta(t, 2.9, out.DualBound, 1e-12)

	out = parseGurobiLog("Model is infeasible\nBest objective -, best bound -, gap -\n")
	assert.Equal(t, model.StatusInfeasible, out.Status)
	assert.True(t, math.IsNaN(out.PrimalBound))

	assert.Equal(t, model.StatusInfeasible, parseGurobiLog("Model is infeasible or unbounded").Status)
	assert.Equal(t, limitStatus, parseGurobiLog("Time limit reached\nBest objective 4.0e+00, best bound 3.0e+00, gap 25.0000%").Status)
	assert.Equal(t, model.StatusUnknown, parseGurobiLog("Set parameter TimeLimit to value 60").Status)
}

func gurobiScript(capture, log, solution string) string {
	s := `echo "$@" > ` + capture + `/args.txt
`
	if solution != "" {
		s += `cat > model.sol <<'EOF'
` + solution + `
EOF
`
	}
	return s + `cat <<'EOF'
` + log + `
EOF
`
}

func TestGurobi_SolveOptimal(t *testing.T) {
	capture := t.TempDir()
	bin, _ := fakeBinary(t, "gurobi_cl", gurobiScript(capture,
		"Optimal solution found (tolerance 1.00e-04)\nBest objective 3.000000000000e+00, best bound 3.000000000000e+00, gap 0.0000%",
		"# Solution for model test\n# Objective value = 3\nx_0 1\ny_0_0 1\nz_0 0"))

	limit := 90.0
	out, err := NewGurobi(bin, false).Solve(context.Background(), testModel(), mip.Options{TimeLimit: &limit})
	require.NoError(t, err)

	assert.Equal(t, model.StatusOptimal, out.Status)
	assert.Equal(t, []float64{1, 1, 0}, out.Values)
	assert.InDelta(t, 0.0, out.Gap(), 0)

	args, err := os.ReadFile(filepath.Join(capture, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "TimeLimit=90 ResultFile=model.sol model.lp", strings.TrimSpace(string(args)))
}

func TestGurobi_Infeasible(t *testing.T) {
	capture := t.TempDir()
	bin, _ := fakeBinary(t, "gurobi_cl", gurobiScript(capture, "Model is infeasible\nBest objective -, best bound -, gap -", ""))

	out, err := NewGurobi(bin, false).Solve(context.Background(), testModel(), mip.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusInfeasible, out.Status)
	assert.Nil(t, out.Values)
	assert.Error(t, Accept(BackendGurobi, out, true))
}

func TestGurobi_TimeLimit(t *testing.T) {
	capture := t.TempDir()
	bin, _ := fakeBinary(t, "gurobi_cl", gurobiScript(capture,
		"Time limit reached\nBest objective 4.000000000000e+00, best bound 3.000000000000e+00, gap 25.0000%",
		"x_0 1\ny_0_0 1\nz_0 1"))

	out, err := NewGurobi(bin, false).Solve(context.Background(), testModel(), mip.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFeasible, out.Status)
	assert.InDelta(t, 0.25, out.Gap(), 1e-12)
	assert.NoError(t, Accept(BackendGurobi, out, true))
	assert.Error(t, Accept(BackendGurobi, out, false))

	capture = t.TempDir()
	bin, _ = fakeBinary(t, "gurobi_cl", gurobiScript(capture, "Time limit reached\nBest objective -, best bound 3.0e+00, gap -", ""))
	out, err = NewGurobi(bin, false).Solve(context.Background(), testModel(), mip.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusTimeoutNoSolution, out.Status)
}

func TestGurobi_KeepFiles(t *testing.T) {
	capture := t.TempDir()
	bin, _ := fakeBinary(t, "gurobi_cl", `pwd > `+capture+`/pwd.txt
echo "Optimal solution found"
echo "x_0 1" > model.sol
`)
	_, err := NewGurobi(bin, true).Solve(context.Background(), testModel(), mip.Options{})
	require.NoError(t, err)

	dir, err := os.ReadFile(filepath.Join(capture, "pwd.txt"))
	require.NoError(t, err)
	workDir := strings.TrimSpace(string(dir))
	t.Cleanup(func() { os.RemoveAll(workDir) })
	assert.FileExists(t, filepath.Join(workDir, "model.lp"))
	assert.FileExists(t, filepath.Join(workDir, "model.sol"))
}
