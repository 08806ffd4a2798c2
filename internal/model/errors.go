package model

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrDegenerateDistances is returned when a weighted statistic would divide
// by zero, e.g. every assigned distance is zero.
var ErrDegenerateDistances = eris.New("degenerate distances: weighted sum is zero")

// InfeasibleError reports a data-level infeasibility detected before the
// solver is invoked.
type InfeasibleError struct {
	Reason string
}

func (e *InfeasibleError) Error() string {
	return "infeasible: " + e.Reason
}

// Infeasiblef builds an InfeasibleError with a formatted reason.
func Infeasiblef(format string, args ...any) *InfeasibleError {
	return &InfeasibleError{Reason: fmt.Sprintf(format, args...)}
}

// SolveStatus is the termination status reported by a solver backend.
type SolveStatus string

// Solve statuses.
const (
	StatusOptimal           SolveStatus = "OPTIMAL"
	StatusFeasible          SolveStatus = "FEASIBLE"
	StatusInfeasible        SolveStatus = "INFEASIBLE"
	StatusTimeoutNoSolution SolveStatus = "TIMEOUT_NO_SOLUTION"
	StatusUnknown           SolveStatus = "UNKNOWN"
)

// HasSolution reports whether the status carries a usable incumbent.
func (s SolveStatus) HasSolution() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// SolverError reports a solve that ended without an accepted solution.
type SolverError struct {
	Backend string
	Status  SolveStatus
	Detail  string
}

func (e *SolverError) Error() string {
	msg := fmt.Sprintf("solver %s: terminated with status %s", e.Backend, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// InvalidParamsError reports a parameter outside its allowed range.
type InvalidParamsError struct {
	Field  string
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

// MissingDistanceError lists (origin, destination) pairs absent from the
// distance lookup.
type MissingDistanceError struct {
	Pairs [][2]string
}

func (e *MissingDistanceError) Error() string {
	const show = 5
	parts := make([]string, 0, show)
	for i, p := range e.Pairs {
		if i == show {
			break
		}
		parts = append(parts, p[0]+"->"+p[1])
	}
	msg := fmt.Sprintf("distance lookup is missing %d pairs: %s", len(e.Pairs), strings.Join(parts, ", "))
	if len(e.Pairs) > show {
		msg += ", ..."
	}
	return msg
}
