// Package bnb is a depth-first branch-and-bound MILP backend. The LP
// relaxation at every node is solved with the gonum simplex. It is meant
// for the modest programs that arise from small and medium networks; large
// instances should be written out in LP format and given to a commercial
// solver through another milp.Solver implementation.
package bnb

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/go-logr/logr"

	"github.com/iti/tsnsched/milp"
)

const (
	// feasTol is the tolerance used when deciding rows directly
	feasTol = 1e-9

	// DefaultIntTol is the distance from an integer below which a value
	// counts as integral
	DefaultIntTol = 1e-6

	// DefaultLPTol is handed to the simplex
	DefaultLPTol = 1e-10

	// DefaultNodeLimit bounds the number of explored nodes
	DefaultNodeLimit = 200000
)

// Solver is a branch-and-bound implementation of milp.Solver
type Solver struct {
	intTol    float64
	lpTol     float64
	nodeLimit int
	log       logr.Logger
}

// Option configures a Solver
type Option func(*Solver)

// WithNodeLimit bounds the number of explored nodes. When the limit is hit
// the best assignment found so far is reported as Feasible.
func WithNodeLimit(n int) Option {
	return func(s *Solver) {
		if n > 0 {
			s.nodeLimit = n
		}
	}
}

// WithIntegralityTolerance sets how far from an integer a value may be and
// still count as integral
func WithIntegralityTolerance(tol float64) Option {
	return func(s *Solver) {
		if tol > 0 {
			s.intTol = tol
		}
	}
}

// WithLogger routes solver progress to the given logger at verbosity 1
func WithLogger(log logr.Logger) Option {
	return func(s *Solver) {
		s.log = log
	}
}

// New is a constructor
func New(opts ...Option) *Solver {
	s := &Solver{intTol: DefaultIntTol, lpTol: DefaultLPTol, nodeLimit: DefaultNodeLimit, log: logr.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// node is a subproblem identified by its variable bounds
type node struct {
	lower []float64
	upper []float64
	depth int
}

// search holds the state of one solve. It is read by the caller once the
// search goroutine has stopped.
type search struct {
	mu        sync.Mutex
	incumbent []float64
	best      float64
	nodes     int
	lpFails   int
	exhausted bool
	unbounded bool
	limitHit  bool
	failure   error
}

// Solve implements milp.Solver
func (s *Solver) Solve(ctx context.Context, p *milp.Program) (*milp.Result, error) {
	st := &search{best: math.Inf(1)}
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.run(ctx, p, st)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// the search notices at its next node; no LP work outlives the call
		<-done
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	diag := []string{fmt.Sprintf("nodes explored: %d", st.nodes)}
	if st.lpFails > 0 {
		diag = append(diag, fmt.Sprintf("relaxations failed numerically: %d", st.lpFails))
	}
	s.log.V(1).Info("branch and bound finished", "program", p.Name, "nodes", st.nodes,
		"lpFailures", st.lpFails, "incumbent", st.incumbent != nil)

	objective := func() float64 {
		if p.Objective.Sense == milp.Maximize {
			return -st.best
		}
		return st.best
	}

	switch {
	case st.unbounded:
		return &milp.Result{Status: milp.Unbounded, Diagnostics: diag}, nil

	case st.exhausted && st.incumbent != nil:
		return &milp.Result{Status: milp.Optimal, Values: st.incumbent, Objective: objective(), Diagnostics: diag}, nil

	case st.exhausted && st.failure == nil:
		return &milp.Result{Status: milp.Infeasible, Diagnostics: diag}, nil

	case st.incumbent != nil:
		// stopped early by the deadline or the node limit
		if st.limitHit {
			diag = append(diag, "node limit reached, optimality not proven")
		} else {
			diag = append(diag, "time limit reached, optimality not proven")
		}
		return &milp.Result{Status: milp.Feasible, Values: st.incumbent, Objective: objective(), Diagnostics: diag}, nil

	case st.failure != nil:
		diag = append(diag, st.failure.Error())
		return &milp.Result{Status: milp.Error, Diagnostics: diag}, fmt.Errorf("%w: %v", milp.ErrSolver, st.failure)

	case st.limitHit:
		diag = append(diag, "node limit reached without a feasible assignment")
		return &milp.Result{Status: milp.Error, Diagnostics: diag},
			fmt.Errorf("%w: node limit %d reached", milp.ErrSolver, s.nodeLimit)
	}

	diag = append(diag, "time limit reached without a feasible assignment")
	return &milp.Result{Status: milp.Error, Diagnostics: diag}, fmt.Errorf("%w: %v", milp.ErrTimeout, ctx.Err())
}

// run explores the tree depth first, up-branch first, and records the
// outcome in st
func (s *Solver) run(ctx context.Context, p *milp.Program, st *search) {
	root := node{lower: make([]float64, len(p.Vars)), upper: make([]float64, len(p.Vars))}
	for idx, v := range p.Vars {
		root.lower[idx], root.upper[idx] = v.Lower, v.Upper
		if v.IsInteger() {
			root.lower[idx] = math.Ceil(v.Lower - s.intTol)
			root.upper[idx] = math.Floor(v.Upper + s.intTol)
		}
	}

	// a constant objective makes the first integral assignment optimal
	stopAtFirst := p.Objective.IsConstant()

	stack := []node{root}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return
		}

		st.mu.Lock()
		if st.nodes >= s.nodeLimit {
			st.limitHit = true
			st.mu.Unlock()
			return
		}
		st.nodes++
		best := st.best
		haveIncumbent := st.incumbent != nil
		st.mu.Unlock()

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		r, ok := relax(p, nd.lower, nd.upper)
		if !ok {
			continue
		}
		status, x, obj, err := r.solve(s.lpTol)

		switch status {
		case lpInfeasible:
			continue

		case lpUnbounded:
			if nd.depth == 0 {
				st.mu.Lock()
				st.unbounded = true
				st.mu.Unlock()
				return
			}
			continue

		case lpFailed:
			st.mu.Lock()
			st.lpFails++
			st.mu.Unlock()

			// fall back on enumerating the first free integer variable
			j := firstFree(p, nd)
			if j < 0 {
				st.mu.Lock()
				st.failure = err
				st.mu.Unlock()
				continue
			}
			s.log.V(1).Info("relaxation failed, enumerating", "var", p.Vars[j].Name, "err", err.Error())
			stack = append(stack, splitAt(nd, j, math.Floor((nd.lower[j]+nd.upper[j])/2))...)
			continue
		}

		// bound in minimization form
		minObj := obj
		if p.Objective.Sense == milp.Maximize {
			minObj = -obj
		}
		if haveIncumbent && minObj >= best-1e-9*math.Max(1, math.Abs(best)) {
			continue
		}

		j := s.fractional(p, x)
		if j < 0 {
			for idx, v := range p.Vars {
				if v.IsInteger() {
					x[idx] = math.Round(x[idx])
				}
			}
			obj = p.Objective.Value(x)
			minObj = obj
			if p.Objective.Sense == milp.Maximize {
				minObj = -obj
			}
			st.mu.Lock()
			st.incumbent, st.best = x, minObj
			st.mu.Unlock()
			s.log.V(1).Info("new incumbent", "objective", obj, "depth", nd.depth)

			if stopAtFirst {
				st.mu.Lock()
				st.exhausted = true
				st.mu.Unlock()
				return
			}
			continue
		}

		// the up branch is pushed last so it is explored first
		stack = append(stack, splitAt(nd, j, math.Floor(x[j]))...)
	}

	st.mu.Lock()
	st.exhausted = true
	st.mu.Unlock()
}

// fractional returns the first integer variable whose value is not integral
func (s *Solver) fractional(p *milp.Program, x []float64) int {
	for idx, v := range p.Vars {
		if v.IsInteger() && math.Abs(x[idx]-math.Round(x[idx])) > s.intTol {
			return idx
		}
	}
	return -1
}

// firstFree returns the first integer variable not yet fixed in the node
func firstFree(p *milp.Program, nd node) int {
	for idx, v := range p.Vars {
		if v.IsInteger() && nd.lower[idx] < nd.upper[idx] {
			return idx
		}
	}
	return -1
}

// splitAt returns the children x_j <= at and x_j >= at+1, in that order
func splitAt(nd node, j int, at float64) []node {
	down := node{lower: append([]float64(nil), nd.lower...), upper: append([]float64(nil), nd.upper...), depth: nd.depth + 1}
	up := node{lower: append([]float64(nil), nd.lower...), upper: append([]float64(nil), nd.upper...), depth: nd.depth + 1}
	down.upper[j] = at
	up.lower[j] = at + 1
	return []node{down, up}
}
