package tsnsched

import "fmt"

// csqfShaper models cycle-specified queuing and forwarding. Every egress
// port has Q cyclic queues. A frame that starts on its first hop k cycles
// after release advances by exactly one cycle per hop, so the queue used at
// hop h is (k+h) mod Q and the end-to-end latency is (k+H) cycles plus the
// link delays of an H-hop path.
type csqfShaper struct {
	queues int
	cfg    CycleConfig
}

func newCSQF(cfg CycleConfig) *csqfShaper {
	return &csqfShaper{queues: cfg.Queues, cfg: cfg}
}

func (cs *csqfShaper) Discipline() Discipline { return CSQF }
func (cs *csqfShaper) CycleMultiple() int     { return 1 }
func (cs *csqfShaper) NumGroups() int         { return 1 }

func (cs *csqfShaper) Describe() string {
	return fmt.Sprintf("CSQF with %d queues", cs.queues)
}

func (cs *csqfShaper) Profiles(s *Stream, period int) []Profile {
	return []Profile{{Instance: 0, Lead: 0, Span: 1}}
}

func (cs *csqfShaper) Domain(s *Stream, period int, w HopWindow, boundCycles int) []Label {
	lo := w.First
	hi := min(boundCycles-w.Rest-1, cs.queues-1+w.MaxBefore)
	if w.Source {
		lo, hi = 0, min(hi, cs.queues-1)
	}
	limit := cs.cfg.deviceLimit(w.Device, cs.queues)

	var rtn []Label
	for offset := lo; offset <= hi; offset++ {
		if q := offset % cs.queues; q < limit {
			rtn = append(rtn, Label{Offset: offset, Queue: q})
		}
	}
	return rtn
}

func (cs *csqfShaper) Start(l Label) bool {
	return l.Offset >= 0 && l.Offset < cs.queues
}

func (cs *csqfShaper) Successors(l Label) []Label {
	return []Label{{Offset: l.Offset + 1, Queue: (l.Offset + 1) % cs.queues}}
}

func (cs *csqfShaper) Follows(prev, next Label) bool {
	return next.Instance == 0 && next.Offset == prev.Offset+1
}

func (cs *csqfShaper) Consistent(l Label) bool {
	return l.Instance == 0 && l.Offset >= 0 && l.Queue == l.Offset%cs.queues
}

func (cs *csqfShaper) Span(Label) int  { return 1 }
func (cs *csqfShaper) Group(Label) int { return 0 }

func (cs *csqfShaper) Capacity(link *Link, group int) float64 {
	return link.Capacity
}
