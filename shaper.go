package tsnsched

import (
	"fmt"
)

// A Label is the queue/cycle assignment of one hop. Offset is the base
// cycle, counted from the release of the frame, in which the hop begins to
// transmit; Queue is the queue number the device uses for it; Instance is
// the Multi-CQF queue set (always 0 for CSQF).
type Label struct {
	Instance int `json:"instance" yaml:"instance"`
	Offset   int `json:"offset" yaml:"offset"`
	Queue    int `json:"queue" yaml:"queue"`
}

func (l Label) String() string {
	return fmt.Sprintf("i%d.o%d.q%d", l.Instance, l.Offset, l.Queue)
}

// A Profile is one way a stream can cross the network: the labels of a
// path all belong to Instance, the first hop starts Lead base cycles after
// release at the earliest and every hop takes at least Span base cycles.
// It gives the latency lower bound Lead*cycle + sum(Span*cycle + delay).
type Profile struct {
	Instance int
	Lead     int
	Span     int
}

// HopWindow tells a shaper where a link can sit on a simple path of a
// stream. First and Rest are the fewest links before and after it,
// MaxBefore the most links before it. Source is set on links leaving the
// stream's source and Device names the device the link leaves.
type HopWindow struct {
	First     int
	Rest      int
	MaxBefore int
	Source    bool
	Device    string
}

// Shaper captures everything that differs between CSQF and Multi-CQF.
// The model builder, extractor and validator only talk to this interface.
type Shaper interface {
	Discipline() Discipline

	// CycleMultiple must divide the hyperperiod
	CycleMultiple() int

	// NumGroups is the number of capacity groups per link
	NumGroups() int

	// Profiles lists the ways a stream with the given period (in base
	// cycles) may be scheduled. An empty list makes the stream ineligible.
	Profiles(s *Stream, period int) []Profile

	// Domain lists the labels a stream may carry on a link. boundCycles is
	// the latency bound in whole base cycles.
	Domain(s *Stream, period int, w HopWindow, boundCycles int) []Label

	// Start reports whether a label may be used on the first hop
	Start(l Label) bool

	// Successors lists the labels the next hop may carry
	Successors(l Label) []Label

	// Follows reports whether next may directly follow prev
	Follows(prev, next Label) bool

	// Consistent reports whether the queue, offset and instance of a label
	// agree with each other
	Consistent(l Label) bool

	// Span is the number of base cycles a hop with this label takes
	Span(l Label) int

	// Group is the capacity group a label draws on
	Group(l Label) int

	// Capacity is the number of bits a group may carry on a link per
	// transmission window
	Capacity(link *Link, group int) float64

	// Describe is a short human readable description for logs
	Describe() string
}

// NewShaper returns the shaper of the chosen discipline. Multi-CQF needs
// the streams to derive its instances when none are configured.
func NewShaper(d Discipline, cfg CycleConfig, streams []*Stream) (Shaper, error) {
	if err := cfg.Validate(d); err != nil {
		return nil, err
	}
	switch d {
	case CSQF:
		return newCSQF(cfg), nil
	case MultiCQF:
		maxBound := 0.0
		for _, s := range streams {
			if s != nil {
				maxBound = max(maxBound, s.Bound)
			}
		}
		return newMCQF(cfg, cfg.ResolveInstances(maxBound)), nil
	}
	return nil, buildErr("shaper", d.String(), ErrBadConfig, "unknown discipline")
}

// boundCycles converts a latency bound to whole base cycles
func boundCycles(bound, cycle float64) int {
	return int(bound/cycle + 1e-9)
}
