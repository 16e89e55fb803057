package tsnsched

import (
	"errors"
	"fmt"

	"github.com/iti/tsnsched/milp"
)

// Extract decodes a solver result into a schedule. Results without an
// assignment become an InfeasibleReport; solveErr is the error the solver
// returned with the result and tells a timeout from other failures. A
// decoded schedule is re-validated against every invariant before it is
// returned; any discrepancy is an *ExtractionError.
func Extract(m *Model, res *milp.Result, solveErr error, opts ...Option) (*Schedule, *InfeasibleReport, error) {
	st := newSettings(opts)
	return extract(m, res, solveErr, st)
}

func extract(m *Model, res *milp.Result, solveErr error, st *settings) (*Schedule, *InfeasibleReport, error) {
	if res == nil {
		return nil, nil, &ExtractionError{Problems: []string{"solver returned no result"}}
	}

	report := func(kind ReportKind) (*Schedule, *InfeasibleReport, error) {
		rep := &InfeasibleReport{RunID: st.runID, Kind: kind, Rejected: m.Rejected,
			Diagnostics: append([]string(nil), res.Diagnostics...)}
		if solveErr != nil {
			rep.Diagnostics = append(rep.Diagnostics, solveErr.Error())
		}
		return nil, rep, nil
	}

	switch res.Status {
	case milp.Infeasible:
		return report(ReportInfeasible)
	case milp.Unbounded:
		return report(ReportUnbounded)
	case milp.Error:
		if errors.Is(solveErr, milp.ErrTimeout) {
			return report(ReportTimeout)
		}
		return report(ReportSolverError)
	}

	if len(res.Values) != m.Program.NumVars() {
		return nil, nil, &ExtractionError{Problems: []string{fmt.Sprintf("assignment has %d values for %d variables",
			len(res.Values), m.Program.NumVars())}}
	}

	sched := &Schedule{
		RunID:       st.runID,
		Discipline:  m.Shaper.Discipline(),
		CycleLength: m.Config.CycleLength,
		Hyperperiod: m.Hyperperiod,
		Objective:   res.Objective,
		Optimal:     res.Status == milp.Optimal,
		Rejected:    m.Rejected,
	}
	for _, sv := range m.streams {
		ss, err := decodeStream(m, sv, res)
		if err != nil {
			st.log.Error(err, "cannot decode solver assignment", "stream", sv.Stream.Name,
				"assignment", err.Assignment)
			return nil, nil, err
		}
		sched.Streams = append(sched.Streams, *ss)
	}

	usage, err := validate(m.Network, m.Shaper, m.Config, m.Scheduled(), sched)
	if err != nil {
		var ee *ExtractionError
		if errors.As(err, &ee) {
			for _, sv := range m.streams {
				if sv.Stream.Name == ee.Stream {
					ee.Assignment = assignment(m.Program, sv, res)
				}
			}
			st.log.Error(err, "decoded schedule fails validation", "stream", ee.Stream,
				"assignment", ee.Assignment)
		} else {
			st.log.Error(err, "decoded schedule fails validation")
		}
		return nil, nil, err
	}
	sched.Usage = usage

	return sched, nil, nil
}

// decodeStream walks the links the assignment uses for one stream from its
// source to its destination
func decodeStream(m *Model, sv *streamVars, res *milp.Result) (*StreamSchedule, *ExtractionError) {
	s := sv.Stream
	fail := func(format string, args ...any) *ExtractionError {
		return &ExtractionError{Stream: s.Name, Assignment: assignment(m.Program, sv, res),
			Problems: []string{fmt.Sprintf(format, args...)}}
	}

	used := make(map[string]*linkVars)
	for _, lv := range sv.Links {
		if res.IsSet(lv.Use) {
			used[lv.Link.Name] = lv
			continue
		}
		for _, lab := range lv.Labels {
			if res.IsSet(lab.Var) {
				return nil, fail("label %s set on unused link %s", lab.Label, lv.Link.Name)
			}
		}
	}

	ss := &StreamSchedule{Stream: s.Name, Src: s.Src, Dst: s.Dst, Bound: s.Bound}
	here := s.Src
	for here != s.Dst {
		if len(ss.Hops) >= len(used) {
			return nil, fail("route does not reach %s", s.Dst)
		}
		var next []*linkVars
		for _, lv := range sv.Links {
			if lv.Link.From == here && used[lv.Link.Name] != nil {
				next = append(next, lv)
			}
		}
		if len(next) != 1 {
			return nil, fail("%d used links leave %s", len(next), here)
		}
		lv := next[0]

		var labels []Label
		for _, lab := range lv.Labels {
			if res.IsSet(lab.Var) {
				labels = append(labels, lab.Label)
			}
		}
		if len(labels) != 1 {
			return nil, fail("%d labels set on link %s", len(labels), lv.Link.Name)
		}
		ss.Hops = append(ss.Hops, Hop{Link: lv.Link.Name, From: lv.Link.From, To: lv.Link.To, Label: labels[0]})
		here = lv.Link.To
	}
	if len(ss.Hops) != len(used) {
		return nil, fail("%d used links are not on the route", len(used)-len(ss.Hops))
	}

	ss.Instance = ss.Hops[0].Label.Instance
	ss.Latency = routeLatency(m.Network, m.Shaper, m.Config.CycleLength, ss.Hops)
	return ss, nil
}

// routeLatency is the cycles up to the end of the last hop's window plus the
// link delays
func routeLatency(net *Network, shaper Shaper, cycle float64, hops []Hop) float64 {
	if len(hops) == 0 {
		return 0
	}
	last := hops[len(hops)-1].Label
	latency := float64(last.Offset+shaper.Span(last)) * cycle
	for _, h := range hops {
		if l, present := net.Link(h.Link); present {
			latency += l.Delay
		}
	}
	return latency
}

// assignment lists the variables of a stream the result sets, for logs
func assignment(p *milp.Program, sv *streamVars, res *milp.Result) []string {
	var rtn []string
	for _, lv := range sv.Links {
		if res.IsSet(lv.Use) {
			rtn = append(rtn, p.Vars[lv.Use].Name)
		}
		for _, lab := range lv.Labels {
			if res.IsSet(lab.Var) {
				rtn = append(rtn, p.Vars[lab.Var].Name)
			}
		}
	}
	return rtn
}
