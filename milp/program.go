// Package milp holds a solver-neutral representation of a mixed-integer
// linear program. Programs are built by appending variables and linear
// constraints, then handed to any implementation of Solver.
package milp

import (
	"fmt"
	"math"
	"sort"
)

// Inf is the bound of a variable unbounded above
var Inf = math.Inf(1)

// VarKind is the domain of a decision variable
type VarKind int

const (
	Continuous VarKind = iota
	Integer
	Binary
)

var varKindToStr = map[VarKind]string{Continuous: "continuous", Integer: "integer", Binary: "binary"}

func (k VarKind) String() string {
	return varKindToStr[k]
}

// Op is the relation of a linear constraint
type Op int

const (
	LE Op = iota
	GE
	EQ
)

var opToStr = map[Op]string{LE: "<=", GE: ">=", EQ: "="}

func (op Op) String() string {
	return opToStr[op]
}

// Sense selects minimization or maximization of the objective
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Var describes one decision variable. ID is its index in Program.Vars.
type Var struct {
	ID    int
	Name  string
	Kind  VarKind
	Lower float64
	Upper float64
}

// IsInteger reports whether the variable must take an integral value
func (v Var) IsInteger() bool {
	return v.Kind == Integer || v.Kind == Binary
}

// Term is the product of a coefficient and a variable
type Term struct {
	Var  int
	Coef float64
}

// Constraint is sum(Terms) Op RHS. Family groups constraints of the same
// role so that they can be counted, reported and relaxed together.
type Constraint struct {
	Name   string
	Family string
	Terms  []Term
	Op     Op
	RHS    float64
}

// Objective is Sense sum(Terms) + Constant
type Objective struct {
	Sense    Sense
	Terms    []Term
	Constant float64
}

// IsConstant reports whether the objective has no variable terms, i.e. the
// program is a pure feasibility problem
func (o Objective) IsConstant() bool {
	return len(o.Terms) == 0
}

// Value evaluates the objective at the given assignment
func (o Objective) Value(values []float64) float64 {
	return Eval(o.Terms, values) + o.Constant
}

// Program is an abstract mixed-integer linear program
type Program struct {
	Name        string
	Vars        []Var
	Constraints []Constraint
	Objective   Objective

	byName map[string]int
}

// New is a constructor
func New(name string) *Program {
	return &Program{Name: name, byName: make(map[string]int)}
}

// AddVar appends a variable and returns its id. Binary variables are always
// bounded to [0,1]. Variable names must be unique within the program.
func (p *Program) AddVar(name string, kind VarKind, lower, upper float64) int {
	if p.byName == nil {
		p.reindex()
	}
	if _, present := p.byName[name]; present {
		panic(fmt.Errorf("milp: duplicated variable name %q in program %s", name, p.Name))
	}
	if kind == Binary {
		lower, upper = math.Max(0, lower), math.Min(1, upper)
	}
	id := len(p.Vars)
	p.Vars = append(p.Vars, Var{ID: id, Name: name, Kind: kind, Lower: lower, Upper: upper})
	p.byName[name] = id

	return id
}

// AddBinary is shorthand for a {0,1} variable
func (p *Program) AddBinary(name string) int {
	return p.AddVar(name, Binary, 0, 1)
}

// VarByName looks up a variable id
func (p *Program) VarByName(name string) (int, bool) {
	if p.byName == nil {
		p.reindex()
	}
	id, present := p.byName[name]
	return id, present
}

func (p *Program) reindex() {
	p.byName = make(map[string]int, len(p.Vars))
	for _, v := range p.Vars {
		p.byName[v.Name] = v.ID
	}
}

// AddConstraint appends a constraint after merging repeated variables and
// dropping zero coefficients. It returns the constraint index.
func (p *Program) AddConstraint(c Constraint) int {
	for _, t := range c.Terms {
		if t.Var < 0 || t.Var >= len(p.Vars) {
			panic(fmt.Errorf("milp: constraint %s references unknown variable %d", c.Name, t.Var))
		}
	}
	c.Terms = Simplify(c.Terms)
	p.Constraints = append(p.Constraints, c)
	return len(p.Constraints) - 1
}

// SetObjective replaces the objective
func (p *Program) SetObjective(sense Sense, terms []Term, constant float64) {
	p.Objective = Objective{Sense: sense, Terms: Simplify(terms), Constant: constant}
}

// NumVars returns the number of variables
func (p *Program) NumVars() int {
	return len(p.Vars)
}

// NumConstraints returns the number of constraints
func (p *Program) NumConstraints() int {
	return len(p.Constraints)
}

// NumIntegers counts the integer and binary variables
func (p *Program) NumIntegers() int {
	n := 0
	for _, v := range p.Vars {
		if v.IsInteger() {
			n++
		}
	}
	return n
}

// Families returns the number of constraints in each family
func (p *Program) Families() map[string]int {
	rtn := make(map[string]int)
	for _, c := range p.Constraints {
		rtn[c.Family]++
	}
	return rtn
}

// FamilyNames returns the sorted list of families present in the program
func (p *Program) FamilyNames() []string {
	counts := p.Families()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithoutFamily returns a copy of the program from which every constraint
// belonging to one of the named families is removed. Variables and the
// objective are shared by value.
func (p *Program) WithoutFamily(families ...string) *Program {
	drop := make(map[string]bool, len(families))
	for _, f := range families {
		drop[f] = true
	}

	cp := &Program{Name: p.Name, Objective: p.Objective}
	cp.Vars = append([]Var(nil), p.Vars...)
	for _, c := range p.Constraints {
		if !drop[c.Family] {
			cp.Constraints = append(cp.Constraints, c)
		}
	}
	cp.reindex()

	return cp
}

// Simplify merges terms on the same variable, drops zero coefficients and
// orders the result by variable id
func Simplify(terms []Term) []Term {
	if len(terms) == 0 {
		return nil
	}
	merged := make(map[int]float64, len(terms))
	order := make([]int, 0, len(terms))
	for _, t := range terms {
		if _, present := merged[t.Var]; !present {
			order = append(order, t.Var)
		}
		merged[t.Var] += t.Coef
	}
	sort.Ints(order)

	rtn := make([]Term, 0, len(order))
	for _, id := range order {
		if coef := merged[id]; coef != 0 {
			rtn = append(rtn, Term{Var: id, Coef: coef})
		}
	}
	return rtn
}

// Eval computes sum(Terms) at the given assignment
func Eval(terms []Term, values []float64) float64 {
	sum := 0.0
	for _, t := range terms {
		sum += t.Coef * values[t.Var]
	}
	return sum
}

// Bounds returns the smallest and largest values sum(terms) can take given
// the variable bounds of the program
func (p *Program) Bounds(terms []Term) (float64, float64) {
	lo, hi := 0.0, 0.0
	for _, t := range terms {
		v := p.Vars[t.Var]
		if t.Coef > 0 {
			lo += t.Coef * v.Lower
			hi += t.Coef * v.Upper
		} else {
			lo += t.Coef * v.Upper
			hi += t.Coef * v.Lower
		}
	}
	return lo, hi
}
