package tsnsched

import (
	"fmt"
	"strings"
)

// mcqfShaper models Multi-CQF. Each instance i is a set of n_i queues that
// rotate every a_i base cycles, starting at base cycles congruent to its
// phase, and may use a fraction b_i of every link. A stream stays in one
// instance end to end. On each hop it occupies one window of a_i cycles;
// the next hop starts between 1 and max(1, n_i-1) windows later.
type mcqfShaper struct {
	instances []Instance
	cfg       CycleConfig
	multiple  int
}

func newMCQF(cfg CycleConfig, instances []Instance) *mcqfShaper {
	ms := &mcqfShaper{instances: instances, cfg: cfg, multiple: 1}
	for _, inst := range instances {
		ms.multiple = lcm(ms.multiple, inst.CycleCoefficient)
	}
	return ms
}

func (ms *mcqfShaper) Discipline() Discipline { return MultiCQF }
func (ms *mcqfShaper) CycleMultiple() int     { return ms.multiple }
func (ms *mcqfShaper) NumGroups() int         { return len(ms.instances) }

func (ms *mcqfShaper) Describe() string {
	parts := make([]string, 0, len(ms.instances))
	for _, inst := range ms.instances {
		parts = append(parts, fmt.Sprintf("{prio %d, %d queues, %gx bw, %dx cycle, phase %d}",
			inst.Priority, inst.Queues, inst.BandwidthFraction, inst.CycleCoefficient, inst.Phase))
	}
	return "Multi-CQF " + strings.Join(parts, " ")
}

// lead is the first base cycle of the instance's windows
func (ms *mcqfShaper) lead(idx int) int {
	inst := ms.instances[idx]
	return inst.Phase % inst.CycleCoefficient
}

// maxStep is the largest number of windows between consecutive hops
func (ms *mcqfShaper) maxStep(idx int) int {
	return max(1, ms.instances[idx].Queues-1)
}

func (ms *mcqfShaper) eligible(s *Stream, period int, idx int) bool {
	inst := ms.instances[idx]
	if inst.Priority != 0 && s.Priority != 0 && inst.Priority != s.Priority {
		return false
	}
	return period%inst.CycleCoefficient == 0
}

func (ms *mcqfShaper) Profiles(s *Stream, period int) []Profile {
	var rtn []Profile
	for idx, inst := range ms.instances {
		if ms.eligible(s, period, idx) {
			rtn = append(rtn, Profile{Instance: idx, Lead: ms.lead(idx), Span: inst.CycleCoefficient})
		}
	}
	return rtn
}

func (ms *mcqfShaper) Domain(s *Stream, period int, w HopWindow, boundCycles int) []Label {
	limit := ms.cfg.deviceLimit(w.Device, len(ms.instances))

	var rtn []Label
	for idx, inst := range ms.instances {
		if idx >= limit || !ms.eligible(s, period, idx) {
			continue
		}
		a, lead := inst.CycleCoefficient, ms.lead(idx)

		// window m starts at lead + m*a; the remaining hops need at
		// least one window each
		lo := w.First
		hi := min((boundCycles-lead)/a-w.Rest-1, inst.Queues-1+w.MaxBefore*ms.maxStep(idx))
		if boundCycles < lead {
			continue
		}
		if w.Source {
			lo, hi = 0, min(hi, inst.Queues-1)
		}
		for m := lo; m <= hi; m++ {
			rtn = append(rtn, Label{Instance: idx, Offset: lead + m*a, Queue: m % inst.Queues})
		}
	}
	return rtn
}

// window returns the window index of a label within its instance
func (ms *mcqfShaper) window(l Label) int {
	return (l.Offset - ms.lead(l.Instance)) / ms.instances[l.Instance].CycleCoefficient
}

func (ms *mcqfShaper) valid(l Label) bool {
	return l.Instance >= 0 && l.Instance < len(ms.instances)
}

func (ms *mcqfShaper) Start(l Label) bool {
	return ms.valid(l) && ms.window(l) >= 0 && ms.window(l) < ms.instances[l.Instance].Queues
}

func (ms *mcqfShaper) Successors(l Label) []Label {
	inst := ms.instances[l.Instance]
	m := ms.window(l)
	rtn := make([]Label, 0, ms.maxStep(l.Instance))
	for g := 1; g <= ms.maxStep(l.Instance); g++ {
		rtn = append(rtn, Label{Instance: l.Instance, Offset: l.Offset + g*inst.CycleCoefficient,
			Queue: (m + g) % inst.Queues})
	}
	return rtn
}

func (ms *mcqfShaper) Follows(prev, next Label) bool {
	if !ms.valid(prev) || next.Instance != prev.Instance {
		return false
	}
	step := ms.window(next) - ms.window(prev)
	return step >= 1 && step <= ms.maxStep(prev.Instance)
}

func (ms *mcqfShaper) Consistent(l Label) bool {
	if !ms.valid(l) {
		return false
	}
	inst := ms.instances[l.Instance]
	rel := l.Offset - ms.lead(l.Instance)
	return rel >= 0 && rel%inst.CycleCoefficient == 0 && l.Queue == (rel/inst.CycleCoefficient)%inst.Queues
}

func (ms *mcqfShaper) Span(l Label) int {
	return ms.instances[l.Instance].CycleCoefficient
}

func (ms *mcqfShaper) Group(l Label) int {
	return l.Instance
}

func (ms *mcqfShaper) Capacity(link *Link, group int) float64 {
	inst := ms.instances[group]
	return inst.BandwidthFraction * link.Capacity * float64(inst.CycleCoefficient)
}
