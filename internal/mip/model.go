// Package mip holds a solver-independent binary integer program: variables,
// a linear objective and named linear constraints.
package mip

import (
	"fmt"
	"math"
	"time"

	"github.com/sells-group/efl/internal/model"
)

// VarID indexes a variable within its Model.
type VarID int

// Term is coef·var.
type Term struct {
	Var  VarID
	Coef float64
}

// Sense is the relation of a constraint.
type Sense int

// Constraint senses.
const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case GE:
		return ">="
	case EQ:
		return "="
	default:
		return "<="
	}
}

// ObjectiveSense is the optimization direction.
type ObjectiveSense int

// Objective directions.
const (
	Minimize ObjectiveSense = iota
	Maximize
)

// Constraint is Σ terms (sense) RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a binary integer program. All variables are binary.
type Model struct {
	Name        string
	ObjSense    ObjectiveSense
	Objective   []Term
	Constraints []Constraint

	names  []string
	byName map[string]VarID
}

// New returns an empty model.
func New(name string) *Model {
	return &Model{Name: name, byName: make(map[string]VarID)}
}

// AddBinary adds a binary variable. Names must be unique and valid LP
// identifiers.
func (m *Model) AddBinary(name string) VarID {
	if _, dup := m.byName[name]; dup {
		panic(fmt.Sprintf("mip: duplicate variable %q", name))
	}
	id := VarID(len(m.names))
	m.names = append(m.names, name)
	m.byName[name] = id
	return id
}

// NumVars returns the number of variables.
func (m *Model) NumVars() int { return len(m.names) }

// VarName returns the LP name of a variable.
func (m *Model) VarName(id VarID) string { return m.names[id] }

// Lookup finds a variable by LP name.
func (m *Model) Lookup(name string) (VarID, bool) {
	id, ok := m.byName[name]
	return id, ok
}

// SetObjective replaces the objective.
func (m *Model) SetObjective(sense ObjectiveSense, terms []Term) {
	m.ObjSense = sense
	m.Objective = terms
}

// AddConstraint appends a named constraint.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	m.Constraints = append(m.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// Sum returns coef·v for each v.
func Sum(vars []VarID, coef float64) []Term {
	terms := make([]Term, len(vars))
	for i, v := range vars {
		terms[i] = Term{Var: v, Coef: coef}
	}
	return terms
}

func dot(terms []Term, values []float64) float64 {
	var s float64
	for _, t := range terms {
		s += t.Coef * values[t.Var]
	}
	return s
}

// ObjectiveValue evaluates the objective at values (indexed by VarID).
func (m *Model) ObjectiveValue(values []float64) float64 {
	return dot(m.Objective, values)
}

// Violations lists the constraints violated by values beyond a relative
// tolerance, plus any variable that is not within tol of 0 or 1.
func (m *Model) Violations(values []float64, tol float64) []string {
	var out []string
	if len(values) != len(m.names) {
		return []string{fmt.Sprintf("expected %d values, got %d", len(m.names), len(values))}
	}
	for i, v := range values {
		if math.Abs(v) > tol && math.Abs(v-1) > tol {
			out = append(out, fmt.Sprintf("%s=%g is not binary", m.names[i], v))
		}
	}
	for _, c := range m.Constraints {
		lhs := dot(c.Terms, values)
		slack := tol * math.Max(1, math.Abs(c.RHS))
		var ok bool
		switch c.Sense {
		case LE:
			ok = lhs <= c.RHS+slack
		case GE:
			ok = lhs >= c.RHS-slack
		case EQ:
			ok = math.Abs(lhs-c.RHS) <= slack
		}
		if !ok {
			out = append(out, fmt.Sprintf("%s: %g %s %g", c.Name, lhs, c.Sense, c.RHS))
		}
	}
	return out
}

// Options are the solver-independent limits of a solve. Nil means the
// backend default.
type Options struct {
	TimeLimit *float64 // seconds
	MIPGap    *float64 // relative optimality gap
}

// Outcome is what a solver returns for a model.
type Outcome struct {
	Status      model.SolveStatus
	PrimalBound float64
	DualBound   float64
	WallTime    time.Duration
	// Values is indexed by VarID; nil when no solution is available.
	Values []float64
}

// Value returns the solution value of v, or 0 without a solution.
func (o *Outcome) Value(v VarID) float64 {
	if int(v) >= len(o.Values) {
		return 0
	}
	return o.Values[v]
}

// Gap returns |dual - primal| / |primal|, or 0 when the primal bound is 0.
// An unknown bound (NaN) yields NaN.
func (o *Outcome) Gap() float64 {
	if math.IsNaN(o.DualBound) || math.IsNaN(o.PrimalBound) {
		return math.NaN()
	}
	if o.PrimalBound == 0 {
		return 0
	}
	return math.Abs(o.DualBound-o.PrimalBound) / math.Abs(o.PrimalBound)
}
