package milp

import (
	"fmt"
	"math"
)

// Violation describes one constraint, bound or integrality requirement that
// an assignment fails to meet
type Violation struct {
	Constraint string
	Family     string
	LHS        float64
	Op         Op
	RHS        float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s [%s]: %g %s %g", v.Constraint, v.Family, v.LHS, v.Op, v.RHS)
}

// Satisfied reports whether lhs op rhs holds within tol
func Satisfied(lhs float64, op Op, rhs, tol float64) bool {
	switch op {
	case LE:
		return lhs <= rhs+tol
	case GE:
		return lhs >= rhs-tol
	default:
		return math.Abs(lhs-rhs) <= tol
	}
}

// Check evaluates every constraint, every variable bound and every
// integrality requirement at values, returning the violated ones.
// A nil result means the assignment is feasible within tol.
func (p *Program) Check(values []float64, tol float64) []Violation {
	var rtn []Violation
	if len(values) != len(p.Vars) {
		return []Violation{{Constraint: "dimension", Family: "assignment",
			LHS: float64(len(values)), Op: EQ, RHS: float64(len(p.Vars))}}
	}

	for _, v := range p.Vars {
		x := values[v.ID]
		if x < v.Lower-tol {
			rtn = append(rtn, Violation{Constraint: v.Name, Family: "bound", LHS: x, Op: GE, RHS: v.Lower})
		}
		if x > v.Upper+tol {
			rtn = append(rtn, Violation{Constraint: v.Name, Family: "bound", LHS: x, Op: LE, RHS: v.Upper})
		}
		if v.IsInteger() && math.Abs(x-math.Round(x)) > tol {
			rtn = append(rtn, Violation{Constraint: v.Name, Family: "integrality", LHS: x, Op: EQ, RHS: math.Round(x)})
		}
	}

	for _, c := range p.Constraints {
		lhs := Eval(c.Terms, values)
		if !Satisfied(lhs, c.Op, c.RHS, tol) {
			rtn = append(rtn, Violation{Constraint: c.Name, Family: c.Family, LHS: lhs, Op: c.Op, RHS: c.RHS})
		}
	}

	return rtn
}
