// Package miptest provides in-process solvers for small models in tests.
package miptest

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/efl/internal/mip"
	"github.com/sells-group/efl/internal/model"
)

const tol = 1e-9

// Exhaustive enumerates every 0/1 vector. Only usable for a handful of
// variables.
type Exhaustive struct {
	MaxVars int // default 20
	Calls   atomic.Int64
}

// Name implements solver.Solver.
func (e *Exhaustive) Name() string { return "exhaustive" }

// Solve implements solver.Solver.
func (e *Exhaustive) Solve(ctx context.Context, m *mip.Model, _ mip.Options) (*mip.Outcome, error) {
	e.Calls.Add(1)
	limit := e.MaxVars
	if limit == 0 {
		limit = 20
	}
	n := m.NumVars()
	if n > limit {
		return nil, eris.Errorf("miptest: %d variables exceed exhaustive limit %d", n, limit)
	}
	start := time.Now()
	best := newIncumbent(m)
	values := make([]float64, n)
	for mask := 0; mask < 1<<n; mask++ {
		if mask&0xfff == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for i := range values {
			values[i] = float64((mask >> i) & 1)
		}
		best.offer(values)
	}
	return best.outcome(time.Since(start)), nil
}

// OpenSet enumerates the open-site variables (x_j) only and, for each open
// set, assigns every origin to its best locally feasible site. This is exact
// for the uncapacitated models the builder produces, where each origin's
// choice only interacts with others through the open set.
type OpenSet struct {
	MaxOpenVars int // default 16
	Calls       atomic.Int64
}

// Name implements solver.Solver.
func (s *OpenSet) Name() string { return "openset" }

type assignVar struct {
	id     mip.VarID
	dest   mip.VarID
	score  float64
	checks []int // constraints over this y and x variables only
}

// Solve implements solver.Solver.
func (s *OpenSet) Solve(ctx context.Context, m *mip.Model, _ mip.Options) (*mip.Outcome, error) {
	s.Calls.Add(1)
	limit := s.MaxOpenVars
	if limit == 0 {
		limit = 16
	}
	start := time.Now()

	var xs []mip.VarID
	destVar := map[string]mip.VarID{}
	byOrigin := map[string][]*assignVar{}
	covered := map[string]mip.VarID{}
	kind := make([]byte, m.NumVars())
	for id := 0; id < m.NumVars(); id++ {
		parts := strings.Split(m.VarName(mip.VarID(id)), "_")
		kind[id] = parts[0][0]
		switch {
		case parts[0] == "x" && len(parts) == 2:
			xs = append(xs, mip.VarID(id))
			destVar[parts[1]] = mip.VarID(id)
		case parts[0] == "z" && len(parts) == 2:
			covered[parts[1]] = mip.VarID(id)
		}
	}
	for id := 0; id < m.NumVars(); id++ {
		parts := strings.Split(m.VarName(mip.VarID(id)), "_")
		if parts[0] == "y" && len(parts) == 3 {
			byOrigin[parts[1]] = append(byOrigin[parts[1]], &assignVar{id: mip.VarID(id), dest: destVar[parts[2]]})
		}
	}
	if len(xs) > limit {
		return nil, eris.Errorf("miptest: %d open variables exceed limit %d", len(xs), limit)
	}

	objCoef := map[mip.VarID]float64{}
	for _, t := range m.Objective {
		objCoef[t.Var] += t.Coef
	}
	yVars := map[mip.VarID]*assignVar{}
	for _, vs := range byOrigin {
		for _, v := range vs {
			v.score = objCoef[v.id]
			yVars[v.id] = v
		}
	}
	for ci, c := range m.Constraints {
		var ys []mip.VarID
		local := true
		for _, t := range c.Terms {
			switch kind[t.Var] {
			case 'y':
				ys = append(ys, t.Var)
			case 'x':
			default:
				local = false
			}
		}
		if local && len(ys) == 1 {
			yVars[ys[0]].checks = append(yVars[ys[0]].checks, ci)
			continue
		}
		if c.Sense == mip.LE && !strings.HasPrefix(c.Name, "capacity_") {
			for _, t := range c.Terms {
				if v, ok := yVars[t.Var]; ok && !strings.HasPrefix(c.Name, "covered_") {
					v.score += t.Coef
				}
			}
		}
	}

	origins := make([]string, 0, len(byOrigin))
	for o := range byOrigin {
		origins = append(origins, o)
	}
	sort.Slice(origins, func(i, j int) bool {
		a, _ := strconv.Atoi(origins[i])
		b, _ := strconv.Atoi(origins[j])
		return a < b
	})

	best := newIncumbent(m)
	values := make([]float64, m.NumVars())
	for mask := 0; mask < 1<<len(xs); mask++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for i := range values {
			values[i] = 0
		}
		for i, x := range xs {
			values[x] = float64((mask >> i) & 1)
		}
		for _, o := range origins {
			var pick *assignVar
			for _, v := range byOrigin[o] {
				if values[v.dest] == 0 || !locallyFeasible(m, v, values) {
					continue
				}
				if pick == nil || v.score < pick.score-tol*abs(pick.score) {
					pick = v
				}
			}
			if pick != nil {
				values[pick.id] = 1
				if z, ok := covered[o]; ok {
					values[z] = 1
				}
			}
		}
		best.offer(values)
	}
	return best.outcome(time.Since(start)), nil
}

func locallyFeasible(m *mip.Model, v *assignVar, values []float64) bool {
	values[v.id] = 1
	defer func() { values[v.id] = 0 }()
	for _, ci := range v.checks {
		c := m.Constraints[ci]
		var lhs float64
		for _, t := range c.Terms {
			lhs += t.Coef * values[t.Var]
		}
		if c.Sense == mip.LE && lhs > c.RHS+tol {
			return false
		}
	}
	return true
}

type incumbent struct {
	m      *mip.Model
	found  bool
	obj    float64
	values []float64
}

func newIncumbent(m *mip.Model) *incumbent {
	return &incumbent{m: m}
}

func (in *incumbent) offer(values []float64) {
	if len(in.m.Violations(values, tol)) > 0 {
		return
	}
	obj := in.m.ObjectiveValue(values)
	better := !in.found
	if in.found {
		if in.m.ObjSense == mip.Maximize {
			better = obj > in.obj+tol*abs(in.obj)
		} else {
			better = obj < in.obj-tol*abs(in.obj)
		}
	}
	if better {
		in.found = true
		in.obj = obj
		in.values = append(in.values[:0], values...)
	}
}

func (in *incumbent) outcome(wall time.Duration) *mip.Outcome {
	if !in.found {
		return &mip.Outcome{Status: model.StatusInfeasible, WallTime: wall}
	}
	return &mip.Outcome{
		Status:      model.StatusOptimal,
		PrimalBound: in.obj,
		DualBound:   in.obj,
		WallTime:    wall,
		Values:      in.values,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
