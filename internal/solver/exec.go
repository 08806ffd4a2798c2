package solver

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/mip"
)

const (
	modelFile    = "model.lp"
	solutionFile = "model.sol"
)

// workspace is a private directory holding one solve's files.
type workspace struct {
	dir  string
	keep bool
}

func newWorkspace(m *mip.Model, keep bool) (*workspace, error) {
	dir, err := os.MkdirTemp("", "efl-solve-")
	if err != nil {
		return nil, eris.Wrap(err, "solver: create work dir")
	}
	ws := &workspace{dir: dir, keep: keep}

	f, err := os.Create(filepath.Join(dir, modelFile))
	if err != nil {
		ws.close()
		return nil, eris.Wrap(err, "solver: create model file")
	}
	if err := mip.WriteLP(f, m); err != nil {
		f.Close()
		ws.close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		ws.close()
		return nil, eris.Wrap(err, "solver: close model file")
	}
	return ws, nil
}

func (ws *workspace) path(name string) string {
	return filepath.Join(ws.dir, name)
}

func (ws *workspace) writeFile(name, content string) error {
	return eris.Wrapf(os.WriteFile(ws.path(name), []byte(content), 0o644), "solver: write %s", name)
}

func (ws *workspace) close() {
	if ws.keep {
		zap.L().Info("solver: keeping work dir", zap.String("dir", ws.dir))
		return
	}
	if err := os.RemoveAll(ws.dir); err != nil {
		zap.L().Warn("solver: remove work dir", zap.String("dir", ws.dir), zap.Error(err))
	}
}

// run executes bin inside the workspace and returns its stdout. A context
// cancellation kills the process.
func (ws *workspace) run(ctx context.Context, name, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = ws.dir
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	zap.L().Debug("solver: starting", zap.String("backend", name), zap.String("bin", bin), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), eris.Wrapf(ctx.Err(), "solver: %s cancelled", name)
		}
		return stdout.String(), eris.Wrapf(err, "solver: %s failed: %s", name, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// readSolution parses "name value" lines from the solution file into a
// vector indexed by VarID. Variables absent from the file are zero. Lines
// whose first field is not a model variable are skipped, which covers
// headers and comments. The bool is false when no solution was written.
func readSolution(path string, m *mip.Model) ([]float64, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "solver: read solution")
	}

	values := make([]float64, m.NumVars())
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "no solution available") {
			return nil, false, nil
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		id, ok := m.Lookup(fields[0])
		if !ok {
			continue
		}
		v, err := parseNumber(fields[1])
		if err != nil {
			return nil, false, eris.Wrapf(err, "solver: parse value of %s", fields[0])
		}
		values[id] = v
	}
	if err := sc.Err(); err != nil {
		return nil, false, eris.Wrap(err, "solver: scan solution")
	}
	return values, true, nil
}
