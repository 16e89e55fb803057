package milp

import (
	"context"
	"errors"
)

var (
	// ErrInfeasible marks a program that has no feasible assignment
	ErrInfeasible = errors.New("milp: program is infeasible")

	// ErrUnbounded marks a program whose objective is unbounded
	ErrUnbounded = errors.New("milp: program is unbounded")

	// ErrTimeout marks a solve that ran out of time before any feasible
	// assignment was found
	ErrTimeout = errors.New("milp: time limit reached")

	// ErrSolver marks any other solver failure
	ErrSolver = errors.New("milp: solver failure")
)

// Status is the outcome class of a solve
type Status int

const (
	Optimal Status = iota
	Feasible
	Infeasible
	Unbounded
	Error
)

var statusToStr = map[Status]string{Optimal: "optimal", Feasible: "feasible",
	Infeasible: "infeasible", Unbounded: "unbounded", Error: "error"}

func (s Status) String() string {
	return statusToStr[s]
}

// HasSolution reports whether the status carries a usable assignment
func (s Status) HasSolution() bool {
	return s == Optimal || s == Feasible
}

// Result is what a Solver reports. Values is indexed by variable id and is
// only meaningful when Status.HasSolution().
type Result struct {
	Status      Status
	Values      []float64
	Objective   float64
	Diagnostics []string
}

// Value returns the value of the variable with the given id, zero when
// no assignment is present
func (r *Result) Value(id int) float64 {
	if r == nil || id < 0 || id >= len(r.Values) {
		return 0
	}
	return r.Values[id]
}

// IsSet reports whether a binary variable is assigned one
func (r *Result) IsSet(id int) bool {
	return r.Value(id) > 0.5
}

// Solver is the contract every MILP backend implements. The returned error
// is non-nil exactly when Status is Error, and then wraps one of ErrTimeout
// or ErrSolver. Infeasible and unbounded programs are reported through
// Status with a nil error.
type Solver interface {
	Solve(ctx context.Context, p *Program) (*Result, error)
}

// SolverFunc adapts a function to the Solver interface
type SolverFunc func(ctx context.Context, p *Program) (*Result, error)

// Solve calls f
func (f SolverFunc) Solve(ctx context.Context, p *Program) (*Result, error) {
	return f(ctx, p)
}
