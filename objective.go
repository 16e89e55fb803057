package tsnsched

import (
	"fmt"
	"strings"

	"github.com/iti/tsnsched/milp"
)

// Objective selects what the solver optimizes once every constraint holds
type Objective int

const (
	// Feasibility accepts the first schedule that satisfies every constraint
	Feasibility Objective = iota

	// MinLatency minimizes the mean end-to-end latency of the streams
	MinLatency

	// MinMaxUtilization minimizes the largest fraction of any capacity
	// group used in any cycle
	MinMaxUtilization

	// MinInstances minimizes the number of capacity groups (Multi-CQF
	// instances) that carry any stream
	MinInstances
)

var objectiveToStr = map[Objective]string{Feasibility: "feasibility", MinLatency: "min-latency",
	MinMaxUtilization: "min-max-utilization", MinInstances: "min-instances"}

func (o Objective) String() string {
	if name, present := objectiveToStr[o]; present {
		return name
	}
	return fmt.Sprintf("objective(%d)", int(o))
}

// ParseObjective accepts the names produced by String
func ParseObjective(name string) (Objective, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Feasibility, nil
	}
	for obj, str := range objectiveToStr {
		if str == name {
			return obj, nil
		}
	}
	return Feasibility, fmt.Errorf("%w: %q", ErrUnsupportedObjective, name)
}

// applyObjective sets the objective of the program, adding the auxiliary
// variables and rows some objectives need
func (m *Model) applyObjective(keys []capKey, load map[capKey][]milp.Term) error {
	p := m.Program
	switch m.Objective {
	case Feasibility:
		p.SetObjective(milp.Minimize, nil, 0)

	case MinLatency:
		if len(m.streams) == 0 {
			p.SetObjective(milp.Minimize, nil, 0)
			return nil
		}
		scale := 1 / float64(len(m.streams))
		var terms []milp.Term
		for _, sv := range m.streams {
			for _, lv := range sv.Links {
				if lv.Link.Delay > 0 {
					terms = append(terms, milp.Term{Var: lv.Use, Coef: scale * lv.Link.Delay})
				}
				if lv.Link.To != sv.Stream.Dst {
					continue
				}
				for _, lab := range lv.Labels {
					cycles := float64(lab.Label.Offset + m.Shaper.Span(lab.Label))
					terms = append(terms, milp.Term{Var: lab.Var, Coef: scale * cycles * m.Config.CycleLength})
				}
			}
		}
		p.SetObjective(milp.Minimize, terms, 0)

	case MinMaxUtilization:
		util := p.AddVar("utilization", milp.Continuous, 0, 1)
		links := m.Network.Links()
		for _, key := range keys {
			link := links[key.link]
			limit := m.Shaper.Capacity(link, key.group)
			row := append(append([]milp.Term(nil), load[key]...), milp.Term{Var: util, Coef: -limit})
			p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("util[%s,%d,%d]", link.Name, key.group, key.phase),
				Family: FamilyObjective, Terms: row, Op: milp.LE, RHS: 0})
		}
		p.SetObjective(milp.Minimize, []milp.Term{{Var: util, Coef: 1}}, 0)

	case MinInstances:
		// a stream keeps its group end to end, so the labels on its first
		// hop tell which group it uses
		var terms []milp.Term
		for g := 0; g < m.Shaper.NumGroups(); g++ {
			var exprs [][]milp.Term
			for _, sv := range m.streams {
				var expr []milp.Term
				for _, lv := range sv.Links {
					if lv.Link.From != sv.Stream.Src {
						continue
					}
					for _, lab := range lv.Labels {
						if m.Shaper.Group(lab.Label) == g {
							expr = append(expr, milp.Term{Var: lab.Var, Coef: 1})
						}
					}
				}
				if len(expr) > 0 {
					exprs = append(exprs, expr)
				}
			}
			if len(exprs) == 0 {
				continue
			}
			used := milp.AddOr(p, fmt.Sprintf("used[%d]", g), FamilyObjective, exprs)
			terms = append(terms, milp.Term{Var: used, Coef: 1})
		}
		p.SetObjective(milp.Minimize, terms, 0)

	default:
		return buildErr("objective", m.Objective.String(), ErrUnsupportedObjective, "")
	}
	return nil
}
