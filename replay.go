package tsnsched

import (
	"fmt"
	"math"
	"sort"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// ReplayResult is what a replay of a schedule measured
type ReplayResult struct {
	// Usage is the load seen per (link, group, phase), ordered like
	// Schedule.Usage
	Usage []LinkUsage

	// Latency is the worst latency of any frame of each stream, in
	// microseconds
	Latency map[string]float64

	// Frames counts the frames released and Events the events fired
	Frames int
	Events int
}

type usageKey struct {
	link  string
	group int
	phase int
}

type replayState struct {
	net      *Network
	shaper   Shaper
	sched    *Schedule
	sizes    []float64
	cycle    float64
	trace    *TraceManager
	load     map[usageKey]float64
	capacity map[usageKey]float64
	latency  map[string]float64
	events   int
	err      error
}

type replayFrame struct {
	stream  int
	release int
	hop     int
	delay   float64 // link delay so far
}

// Replay releases every frame of every scheduled stream over one
// hyperperiod on a discrete-event list and fires a transmission event on
// every hop at the cycle its label names. It measures the load per link,
// group and phase, and the latency of every frame. streams supplies the
// frame sizes and periods of the scheduled streams. Event times count
// microseconds.
func Replay(net *Network, shaper Shaper, streams []*Stream, sched *Schedule, tm *TraceManager) (*ReplayResult, error) {
	byName := make(map[string]*Stream, len(streams))
	for _, s := range streams {
		byName[s.Name] = s
	}

	st := &replayState{
		net:      net,
		shaper:   shaper,
		sched:    sched,
		sizes:    make([]float64, len(sched.Streams)),
		cycle:    sched.CycleLength,
		trace:    tm,
		load:     make(map[usageKey]float64),
		capacity: make(map[usageKey]float64),
		latency:  make(map[string]float64),
	}

	evtMgr := evtm.New()
	frames := 0
	horizon := float64(sched.Hyperperiod) * st.cycle
	for idx := range sched.Streams {
		ss := &sched.Streams[idx]
		s, present := byName[ss.Stream]
		if !present {
			return nil, fmt.Errorf("replay: no stream named %q", ss.Stream)
		}
		if len(ss.Hops) == 0 {
			return nil, fmt.Errorf("replay: stream %q has no hops", ss.Stream)
		}
		period, err := s.periodCycles(sched.CycleLength)
		if err != nil {
			return nil, err
		}
		st.sizes[idx] = s.FrameSize
		if err := tm.AddName(idx, ss.Stream, "stream"); err != nil {
			return nil, err
		}
		for rel := 0; rel < sched.Hyperperiod; rel += period {
			f := &replayFrame{stream: idx, release: rel}
			evtMgr.Schedule(st, f, frameRelease, vrtime.SecondsToTime(float64(rel)*st.cycle))
			frames++
		}
		horizon = max(horizon, float64(sched.Hyperperiod)*st.cycle+s.Bound)
	}

	evtMgr.Run(horizon + st.cycle)
	if st.err != nil {
		return nil, st.err
	}

	keys := make([]usageKey, 0, len(st.load))
	for k := range st.load {
		keys = append(keys, k)
	}
	order := make(map[string]int)
	for idx, l := range net.Links() {
		order[l.Name] = idx
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.link != b.link {
			return order[a.link] < order[b.link]
		}
		if a.group != b.group {
			return a.group < b.group
		}
		return a.phase < b.phase
	})

	rr := &ReplayResult{Latency: st.latency, Frames: frames, Events: st.events}
	for _, k := range keys {
		rr.Usage = append(rr.Usage, LinkUsage{Link: k.link, Group: k.group, Phase: k.phase,
			Load: st.load[k], Capacity: st.capacity[k]})
	}
	return rr, nil
}

// frameRelease fires when a frame is released at its source
func frameRelease(evtMgr *evtm.EventManager, context any, data any) any {
	st := context.(*replayState)
	f := data.(*replayFrame)
	st.events++

	first := st.sched.Streams[f.stream].Hops[0].Label
	evtMgr.Schedule(st, f, hopStart, vrtime.SecondsToTime(float64(first.Offset)*st.cycle))
	return nil
}

// hopStart fires when a frame begins transmission on a hop
func hopStart(evtMgr *evtm.EventManager, context any, data any) any {
	st := context.(*replayState)
	f := data.(*replayFrame)
	st.events++

	ss := &st.sched.Streams[f.stream]
	h := ss.Hops[f.hop]
	now := evtMgr.CurrentSeconds()
	phase := int(math.Round(now/st.cycle)) % st.sched.Hyperperiod

	l, present := st.net.Link(h.Link)
	if !present {
		st.fail(fmt.Errorf("replay: stream %q uses unknown link %s", ss.Stream, h.Link))
		return nil
	}
	key := usageKey{link: h.Link, group: st.shaper.Group(h.Label), phase: phase}
	st.load[key] += st.sizes[f.stream]
	st.capacity[key] = st.shaper.Capacity(l, key.group)
	f.delay += l.Delay

	if err := addHopTrace(st.trace, evtMgr.CurrentTime(), f.stream, &HopTrace{Stream: ss.Stream,
		Release: f.release, Hop: f.hop, Link: h.Link, Label: h.Label, Phase: phase, Op: "transmit"}); err != nil {
		st.fail(err)
	}

	if f.hop == len(ss.Hops)-1 {
		after := float64(st.shaper.Span(h.Label))*st.cycle + f.delay
		evtMgr.Schedule(st, f, frameArrival, vrtime.SecondsToTime(after))
		return nil
	}
	next := ss.Hops[f.hop+1].Label
	f.hop++
	evtMgr.Schedule(st, f, hopStart, vrtime.SecondsToTime(float64(next.Offset-h.Label.Offset)*st.cycle))
	return nil
}

// frameArrival fires when the last bit of a frame has reached the
// destination
func frameArrival(evtMgr *evtm.EventManager, context any, data any) any {
	st := context.(*replayState)
	f := data.(*replayFrame)
	st.events++

	ss := &st.sched.Streams[f.stream]
	latency := evtMgr.CurrentSeconds() - float64(f.release)*st.cycle
	st.latency[ss.Stream] = max(st.latency[ss.Stream], latency)

	if err := addHopTrace(st.trace, evtMgr.CurrentTime(), f.stream, &HopTrace{Stream: ss.Stream,
		Release: f.release, Hop: f.hop + 1, Op: "arrive"}); err != nil {
		st.fail(err)
	}
	return nil
}

func (st *replayState) fail(err error) {
	if st.err == nil {
		st.err = err
	}
}

// Compare checks the replay against the usage table and latencies the
// schedule claims
func (rr *ReplayResult) Compare(sched *Schedule) error {
	var problems []string
	claimed := make(map[usageKey]float64, len(sched.Usage))
	for _, u := range sched.Usage {
		claimed[usageKey{link: u.Link, group: u.Group, phase: u.Phase}] = u.Load
	}
	for _, u := range rr.Usage {
		k := usageKey{link: u.Link, group: u.Group, phase: u.Phase}
		if math.Abs(claimed[k]-u.Load) > validateTol {
			problems = append(problems, fmt.Sprintf("link %s group %d phase %d: replay load %g, schedule %g",
				u.Link, u.Group, u.Phase, u.Load, claimed[k]))
		}
		if u.Load > u.Capacity+validateTol {
			problems = append(problems, fmt.Sprintf("link %s group %d phase %d: replay load %g exceeds capacity %g",
				u.Link, u.Group, u.Phase, u.Load, u.Capacity))
		}
		delete(claimed, k)
	}
	for k, load := range claimed {
		if load > 0 {
			problems = append(problems, fmt.Sprintf("link %s group %d phase %d: no load replayed, schedule %g",
				k.link, k.group, k.phase, load))
		}
	}
	// event times are quantized to ticks
	const latencyTol = 1e-3
	for _, ss := range sched.Streams {
		got, present := rr.Latency[ss.Stream]
		if !present {
			problems = append(problems, fmt.Sprintf("%s: no frame arrived", ss.Stream))
			continue
		}
		if math.Abs(got-ss.Latency) > latencyTol {
			problems = append(problems, fmt.Sprintf("%s: replay latency %g, schedule %g", ss.Stream, got, ss.Latency))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return &ExtractionError{Problems: problems}
	}
	return nil
}
