package milp

import (
	"fmt"
	"math"
)

// AddOr introduces a binary z = OR(exprs), where every expression is known
// to take only the values 0 and 1. It is written as z >= expr_i for every i,
// together with z <= sum(expr_i). The id of z is returned.
func AddOr(p *Program, name, family string, exprs [][]Term) int {
	z := p.AddBinary(name)
	var sum []Term
	for idx, expr := range exprs {
		row := append([]Term{{Var: z, Coef: 1}}, negate(expr)...)
		p.AddConstraint(Constraint{Name: fmt.Sprintf("%s.ge%d", name, idx), Family: family,
			Terms: row, Op: GE, RHS: 0})
		sum = append(sum, expr...)
	}
	row := append([]Term{{Var: z, Coef: 1}}, negate(sum)...)
	p.AddConstraint(Constraint{Name: name + ".le", Family: family, Terms: row, Op: LE, RHS: 0})

	return z
}

// AddIndicator adds the implication "ind = 1 implies sum(terms) op rhs",
// where ind is a binary variable. The big-M constant is derived from the
// bounds of the variables in terms, so every variable involved needs finite
// bounds. When the implied constraint holds for every assignment within the
// bounds nothing is added and false is returned.
func AddIndicator(p *Program, name, family string, ind int, terms []Term, op Op, rhs float64) (bool, error) {
	if ind < 0 || ind >= len(p.Vars) || p.Vars[ind].Kind != Binary {
		return false, fmt.Errorf("milp: indicator %s is not a binary variable", name)
	}
	lo, hi := p.Bounds(terms)
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) || math.IsNaN(lo) || math.IsNaN(hi) {
		return false, fmt.Errorf("milp: indicator %s needs finite variable bounds", name)
	}

	added := false

	// sum(terms) + M*ind <= rhs + M, M = hi - rhs
	if op == LE || op == EQ {
		if bigM := hi - rhs; bigM > 0 {
			row := append(append([]Term(nil), terms...), Term{Var: ind, Coef: bigM})
			p.AddConstraint(Constraint{Name: name + ".le", Family: family, Terms: row, Op: LE, RHS: rhs + bigM})
			added = true
		}
	}

	// sum(terms) - M*ind >= rhs - M, M = rhs - lo
	if op == GE || op == EQ {
		if bigM := rhs - lo; bigM > 0 {
			row := append(append([]Term(nil), terms...), Term{Var: ind, Coef: -bigM})
			p.AddConstraint(Constraint{Name: name + ".ge", Family: family, Terms: row, Op: GE, RHS: rhs - bigM})
			added = true
		}
	}

	return added, nil
}

func negate(terms []Term) []Term {
	rtn := make([]Term, len(terms))
	for idx, t := range terms {
		rtn[idx] = Term{Var: t.Var, Coef: -t.Coef}
	}
	return rtn
}
