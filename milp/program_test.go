package milp_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iti/tsnsched/milp"
)

func TestSimplifyMergesAndOrders(t *testing.T) {
	terms := milp.Simplify([]milp.Term{{Var: 3, Coef: 1}, {Var: 1, Coef: 2}, {Var: 3, Coef: -1}, {Var: 1, Coef: 0.5}})
	require.Equal(t, []milp.Term{{Var: 1, Coef: 2.5}}, terms)
	require.Nil(t, milp.Simplify(nil))
}

func TestAddVarBinaryBounds(t *testing.T) {
	p := milp.New("t")
	x := p.AddVar("x", milp.Binary, -3, 7)
	require.Equal(t, 0.0, p.Vars[x].Lower)
	require.Equal(t, 1.0, p.Vars[x].Upper)

	id, ok := p.VarByName("x")
	require.True(t, ok)
	require.Equal(t, x, id)

	require.Panics(t, func() { p.AddVar("x", milp.Continuous, 0, 1) })
	require.Panics(t, func() {
		p.AddConstraint(milp.Constraint{Name: "bad", Terms: []milp.Term{{Var: 9, Coef: 1}}})
	})
}

func TestCheckReportsViolations(t *testing.T) {
	p := milp.New("t")
	x := p.AddBinary("x")
	y := p.AddVar("y", milp.Integer, 0, 5)
	p.AddConstraint(milp.Constraint{Name: "sum", Family: "cap",
		Terms: []milp.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, Op: milp.LE, RHS: 3})

	require.Empty(t, p.Check([]float64{1, 2}, 1e-9))

	v := p.Check([]float64{1, 2.5}, 1e-9)
	require.Len(t, v, 2)
	assert.Equal(t, "integrality", v[0].Family)
	assert.Equal(t, "cap", v[1].Family)

	v = p.Check([]float64{2, 0}, 1e-9)
	require.Len(t, v, 1)
	assert.Equal(t, "bound", v[0].Family)
}

func TestWithoutFamily(t *testing.T) {
	p := milp.New("t")
	x := p.AddBinary("x")
	p.AddConstraint(milp.Constraint{Name: "a", Family: "capacity", Terms: []milp.Term{{Var: x, Coef: 1}}, Op: milp.LE, RHS: 0})
	p.AddConstraint(milp.Constraint{Name: "b", Family: "route", Terms: []milp.Term{{Var: x, Coef: 1}}, Op: milp.EQ, RHS: 1})

	relaxed := p.WithoutFamily("capacity")
	require.Equal(t, 1, relaxed.NumConstraints())
	require.Equal(t, 2, p.NumConstraints())
	require.Equal(t, []string{"route"}, relaxed.FamilyNames())
	require.Equal(t, map[string]int{"capacity": 1, "route": 1}, p.Families())

	_, ok := relaxed.VarByName("x")
	require.True(t, ok)
}

func TestAddIndicator(t *testing.T) {
	p := milp.New("t")
	ind := p.AddBinary("ind")
	d := p.AddVar("d", milp.Continuous, 0, 10)

	added, err := milp.AddIndicator(p, "lat", "latency", ind, []milp.Term{{Var: d, Coef: 1}}, milp.LE, 4)
	require.NoError(t, err)
	require.True(t, added)

	// ind = 1 enforces d <= 4, ind = 0 leaves d free
	require.Empty(t, p.Check([]float64{1, 4}, 1e-9))
	require.NotEmpty(t, p.Check([]float64{1, 5}, 1e-9))
	require.Empty(t, p.Check([]float64{0, 10}, 1e-9))

	// redundant implication adds nothing
	n := p.NumConstraints()
	added, err = milp.AddIndicator(p, "slack", "latency", ind, []milp.Term{{Var: d, Coef: 1}}, milp.LE, 20)
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, n, p.NumConstraints())

	free := p.AddVar("free", milp.Continuous, 0, milp.Inf)
	_, err = milp.AddIndicator(p, "inf", "latency", ind, []milp.Term{{Var: free, Coef: 1}}, milp.LE, 1)
	require.Error(t, err)

	_, err = milp.AddIndicator(p, "notbin", "latency", d, []milp.Term{{Var: free, Coef: 1}}, milp.LE, 1)
	require.Error(t, err)
}

func TestAddOr(t *testing.T) {
	p := milp.New("t")
	a := p.AddBinary("a")
	b := p.AddBinary("b")
	z := milp.AddOr(p, "z", "objective", [][]milp.Term{{{Var: a, Coef: 1}}, {{Var: b, Coef: 1}}})

	for _, tc := range []struct{ a, b, z float64 }{{0, 0, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1}} {
		values := make([]float64, p.NumVars())
		values[a], values[b], values[z] = tc.a, tc.b, tc.z
		require.Empty(t, p.Check(values, 1e-9), "a=%v b=%v", tc.a, tc.b)

		values[z] = 1 - tc.z
		require.NotEmpty(t, p.Check(values, 1e-9), "a=%v b=%v wrong z", tc.a, tc.b)
	}
}

func TestWriteLP(t *testing.T) {
	p := milp.New("demo")
	x := p.AddBinary("r[s1,A->B]")
	y := p.AddVar("load", milp.Continuous, 0, 2)
	n := p.AddVar("n", milp.Integer, 0, 4)
	p.AddConstraint(milp.Constraint{Name: "cap[A->B]", Family: "capacity",
		Terms: []milp.Term{{Var: x, Coef: 500}, {Var: y, Coef: -1}}, Op: milp.LE, RHS: 1000})
	p.SetObjective(milp.Minimize, []milp.Term{{Var: n, Coef: 2}}, 1)

	var buf bytes.Buffer
	require.NoError(t, milp.WriteLP(&buf, p))
	out := buf.String()

	assert.Contains(t, out, "Minimize\n obj: + 2 n + 1\n")
	assert.Contains(t, out, " cap_A__B_: + 500 r_s1,A__B_ - 1 load <= 1000\n")
	assert.Contains(t, out, " 0 <= load <= 2\n")
	assert.Contains(t, out, "Generals\n n\n")
	assert.Contains(t, out, "Binaries\n r_s1,A__B_\n")
	assert.True(t, strings.HasSuffix(out, "End\n"))
}
