package bnb

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/iti/tsnsched/milp"
)

// lpStatus classifies the outcome of one relaxation
type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
	lpFailed
)

// column maps one original variable onto the nonnegative columns of the
// standard form: x = offset + sign[0]*z[cols[0]] (+ sign[1]*z[cols[1]])
type column struct {
	offset float64
	cols   []int
	signs  []float64
}

// relaxation is the standard form min c'z, Az = b, z >= 0 of the LP
// relaxation of a program under a given set of variable bounds
type relaxation struct {
	prog     *milp.Program
	vars     []column
	nz       int // structural columns
	rows     [][]float64
	rhs      []float64
	ops      []milp.Op
	cost     []float64
	constant float64
	sign     float64 // +1 minimize, -1 maximize
}

// relax builds the standard form for the program restricted to [lower, upper].
// Every row receives its own slack so the constraint matrix has full row
// rank. Equalities are split into a pair of inequalities for the same reason.
func relax(p *milp.Program, lower, upper []float64) (*relaxation, bool) {
	r := &relaxation{prog: p, vars: make([]column, len(p.Vars)), sign: 1}
	if p.Objective.Sense == milp.Maximize {
		r.sign = -1
	}

	type bound struct {
		col   int
		limit float64
	}
	var ubRows []bound

	for idx := range p.Vars {
		lo, hi := lower[idx], upper[idx]
		switch {
		case lo > hi:
			return nil, false
		case lo == hi:
			r.vars[idx] = column{offset: lo}
		case !math.IsInf(lo, -1):
			r.vars[idx] = column{offset: lo, cols: []int{r.nz}, signs: []float64{1}}
			if !math.IsInf(hi, 1) {
				ubRows = append(ubRows, bound{col: r.nz, limit: hi - lo})
			}
			r.nz++
		case !math.IsInf(hi, 1):
			r.vars[idx] = column{offset: hi, cols: []int{r.nz}, signs: []float64{-1}}
			r.nz++
		default:
			r.vars[idx] = column{cols: []int{r.nz, r.nz + 1}, signs: []float64{1, -1}}
			r.nz += 2
		}
	}

	r.cost = make([]float64, r.nz)
	for _, t := range p.Objective.Terms {
		col := r.vars[t.Var]
		r.constant += t.Coef * col.offset
		for k, c := range col.cols {
			r.cost[c] += r.sign * t.Coef * col.signs[k]
		}
	}
	r.constant = r.sign*r.constant + r.sign*p.Objective.Constant

	addRow := func(coefs []float64, op milp.Op, rhs float64) {
		switch op {
		case milp.LE, milp.GE:
			r.rows = append(r.rows, coefs)
			r.rhs = append(r.rhs, rhs)
			r.ops = append(r.ops, op)
		case milp.EQ:
			r.rows = append(r.rows, coefs, append([]float64(nil), coefs...))
			r.rhs = append(r.rhs, rhs, rhs)
			r.ops = append(r.ops, milp.LE, milp.GE)
		}
	}

	for _, c := range p.Constraints {
		coefs := make([]float64, r.nz)
		rhs := c.RHS
		for _, t := range c.Terms {
			col := r.vars[t.Var]
			rhs -= t.Coef * col.offset
			for k, cc := range col.cols {
				coefs[cc] += t.Coef * col.signs[k]
			}
		}
		addRow(coefs, c.Op, rhs)
	}
	for _, ub := range ubRows {
		coefs := make([]float64, r.nz)
		coefs[ub.col] = 1
		addRow(coefs, milp.LE, ub.limit)
	}

	return r, true
}

// solve runs the simplex on the standard form and maps the solution back
// onto the original variables
func (r *relaxation) solve(tol float64) (lpStatus, []float64, float64, error) {
	m := len(r.rows)

	// rows without structural columns are decided directly
	keep := make([]int, 0, m)
	for i := 0; i < m; i++ {
		if isZero(r.rows[i]) {
			if !milp.Satisfied(0, r.ops[i], r.rhs[i], feasTol) {
				return lpInfeasible, nil, 0, nil
			}
			continue
		}
		keep = append(keep, i)
	}

	// structural columns absent from every remaining row are set at zero,
	// unless their cost makes the relaxation unbounded
	used := make([]bool, r.nz)
	for _, i := range keep {
		for j, a := range r.rows[i] {
			if a != 0 {
				used[j] = true
			}
		}
	}
	colIdx := make([]int, r.nz)
	ncols := 0
	for j := 0; j < r.nz; j++ {
		if !used[j] {
			if r.cost[j] < 0 {
				return lpUnbounded, nil, 0, nil
			}
			colIdx[j] = -1
			continue
		}
		colIdx[j] = ncols
		ncols++
	}

	z := make([]float64, r.nz)
	obj := r.constant

	if len(keep) > 0 {
		rows := len(keep)
		n := ncols + rows
		data := make([]float64, rows*n)
		b := make([]float64, rows)
		c := make([]float64, n)
		for j := 0; j < r.nz; j++ {
			if colIdx[j] >= 0 {
				c[colIdx[j]] = r.cost[j]
			}
		}
		for k, i := range keep {
			flip := 1.0
			if r.rhs[i] < 0 {
				flip = -1
			}
			for j, a := range r.rows[i] {
				if a != 0 {
					data[k*n+colIdx[j]] = flip * a
				}
			}
			slack := 1.0
			if r.ops[i] == milp.GE {
				slack = -1
			}
			data[k*n+ncols+k] = flip * slack
			b[k] = flip * r.rhs[i]
		}

		optF, optX, err := simplex(c, mat.NewDense(rows, n, data), b, tol)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return lpInfeasible, nil, 0, nil
		case errors.Is(err, lp.ErrUnbounded):
			return lpUnbounded, nil, 0, nil
		case err != nil:
			return lpFailed, nil, 0, err
		}
		for j := 0; j < r.nz; j++ {
			if colIdx[j] >= 0 {
				z[j] = optX[colIdx[j]]
			}
		}
		obj += optF
	}

	x := make([]float64, len(r.vars))
	for idx, col := range r.vars {
		x[idx] = col.offset
		for k, cc := range col.cols {
			x[idx] += col.signs[k] * z[cc]
		}
	}

	// obj is in minimization form; report it in the sense of the program
	return lpOptimal, x, r.sign * obj, nil
}

// simplex converts panics raised by the LP package on numerically
// degenerate input into an error
func simplex(c []float64, A mat.Matrix, b []float64, tol float64) (optF float64, optX []float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("simplex: %v", rec)
		}
	}()
	return lp.Simplex(c, A, b, tol, nil)
}

func isZero(row []float64) bool {
	for _, a := range row {
		if a != 0 {
			return false
		}
	}
	return true
}
