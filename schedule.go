package tsnsched

import (
	"fmt"
	"strings"
)

// A Hop is one link of a routed stream and the label it carries there
type Hop struct {
	Link  string `json:"link" yaml:"link"`
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Label Label  `json:"label" yaml:"label"`
}

// StreamSchedule is the routing decision and queue assignment of a stream.
// Latency is the worst-case end-to-end latency in microseconds.
type StreamSchedule struct {
	Stream   string  `json:"stream" yaml:"stream"`
	Src      string  `json:"src" yaml:"src"`
	Dst      string  `json:"dst" yaml:"dst"`
	Instance int     `json:"instance" yaml:"instance"`
	Latency  float64 `json:"latency" yaml:"latency"`
	Bound    float64 `json:"bound" yaml:"bound"`
	Hops     []Hop   `json:"hops" yaml:"hops"`
}

// Path returns the link names of the route
func (ss *StreamSchedule) Path() []string {
	rtn := make([]string, len(ss.Hops))
	for idx, h := range ss.Hops {
		rtn[idx] = h.Link
	}
	return rtn
}

// Labels returns the label of every hop
func (ss *StreamSchedule) Labels() []Label {
	rtn := make([]Label, len(ss.Hops))
	for idx, h := range ss.Hops {
		rtn[idx] = h.Label
	}
	return rtn
}

// LinkUsage is the load one capacity group of a link carries in one phase
// of the hyperperiod, in bits
type LinkUsage struct {
	Link     string  `json:"link" yaml:"link"`
	Group    int     `json:"group" yaml:"group"`
	Phase    int     `json:"phase" yaml:"phase"`
	Load     float64 `json:"load" yaml:"load"`
	Capacity float64 `json:"capacity" yaml:"capacity"`
}

// Schedule is the validated result of a run
type Schedule struct {
	RunID       string                `json:"runid" yaml:"runid"`
	Discipline  Discipline            `json:"discipline" yaml:"discipline"`
	CycleLength float64               `json:"cyclelength" yaml:"cyclelength"`
	Hyperperiod int                   `json:"hyperperiod" yaml:"hyperperiod"`
	Objective   float64               `json:"objective" yaml:"objective"`
	Optimal     bool                  `json:"optimal" yaml:"optimal"`
	Streams     []StreamSchedule      `json:"streams" yaml:"streams"`
	Usage       []LinkUsage           `json:"usage" yaml:"usage"`
	Rejected    []StaticInfeasibility `json:"rejected,omitempty" yaml:"rejected,omitempty"`
}

// Stream looks up the schedule of a stream by name
func (s *Schedule) Stream(name string) (*StreamSchedule, bool) {
	for idx := range s.Streams {
		if s.Streams[idx].Stream == name {
			return &s.Streams[idx], true
		}
	}
	return nil, false
}

// MaxUtilization is the largest load to capacity ratio in the usage table
func (s *Schedule) MaxUtilization() float64 {
	rtn := 0.0
	for _, u := range s.Usage {
		if u.Capacity > 0 {
			rtn = max(rtn, u.Load/u.Capacity)
		}
	}
	return rtn
}

// ReportKind classifies why no schedule was produced
type ReportKind int

const (
	ReportInfeasible ReportKind = iota
	ReportUnbounded
	ReportTimeout
	ReportSolverError
)

var reportKindToStr = map[ReportKind]string{ReportInfeasible: "infeasible", ReportUnbounded: "unbounded",
	ReportTimeout: "timeout", ReportSolverError: "solver-error"}

func (k ReportKind) String() string {
	return reportKindToStr[k]
}

// MarshalText lets a ReportKind appear by name in yaml and json
func (k ReportKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// InfeasibleReport explains a run that produced no schedule. Families, when
// diagnosis ran, names the constraint families whose removal alone makes
// the program feasible.
type InfeasibleReport struct {
	RunID       string                `json:"runid" yaml:"runid"`
	Kind        ReportKind            `json:"kind" yaml:"kind"`
	Families    []string              `json:"families,omitempty" yaml:"families,omitempty"`
	Diagnostics []string              `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Rejected    []StaticInfeasibility `json:"rejected,omitempty" yaml:"rejected,omitempty"`
}

func (r *InfeasibleReport) String() string {
	var sb strings.Builder
	sb.WriteString(r.Kind.String())
	if len(r.Families) > 0 {
		sb.WriteString(fmt.Sprintf(" (relaxing %s restores feasibility)", strings.Join(r.Families, " or ")))
	}
	for _, d := range r.Diagnostics {
		sb.WriteString("; " + d)
	}
	return sb.String()
}
