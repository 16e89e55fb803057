package tsnsched

import (
	"context"
)

// diagnosable lists the families diagnosis tries to relax, in the order
// they are reported
var diagnosable = []string{FamilyCapacity, FamilyLatency, FamilyTransition, FamilyFixed}

// diagnose re-solves an infeasible program with one constraint family
// removed at a time and returns the families whose removal alone makes it
// feasible. Solver failures during diagnosis only drop that family.
func diagnose(ctx context.Context, m *Model, st *settings) []string {
	present := m.Program.Families()
	var rtn []string
	for _, family := range diagnosable {
		if present[family] == 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		relaxed := m.Program.WithoutFamily(family)
		res, err := solve(ctx, relaxed, st)
		if err != nil {
			st.log.V(1).Info("diagnosis solve failed", "family", family, "err", err.Error())
			continue
		}
		st.log.V(1).Info("diagnosis", "family", family, "status", res.Status.String())
		if res.Status.HasSolution() {
			rtn = append(rtn, family)
		}
	}
	return rtn
}
