package tsnsched

import (
	"fmt"
	"math"
	"sort"
)

const validateTol = 1e-6

// Validate checks a schedule against the network, the shaper and the
// streams it claims to schedule, independently of how the schedule was
// produced:
//
//   - every route is a simple path of existing links from source to destination
//   - no capacity group of any link is overloaded in any cycle of the hyperperiod
//   - labels start, advance and rotate the way the discipline prescribes
//   - every latency is within its bound
//   - every period fits the base cycle and the stream's queue instance
//   - no label exceeds the queue limit of the device it leaves
//   - every stream is scheduled exactly once or listed as rejected
//
// The per-cycle usage table is returned when the schedule is valid.
func Validate(net *Network, shaper Shaper, cfg CycleConfig, streams []*Stream, sched *Schedule) ([]LinkUsage, error) {
	return validate(net, shaper, cfg, streams, sched)
}

func validate(net *Network, shaper Shaper, cfg CycleConfig, streams []*Stream, sched *Schedule) ([]LinkUsage, error) {
	byName := make(map[string]*Stream, len(streams))
	for _, s := range streams {
		byName[s.Name] = s
	}

	var problems []string
	failed := ""
	note := func(stream, format string, args ...any) {
		problems = append(problems, fmt.Sprintf("%s: %s", stream, fmt.Sprintf(format, args...)))
		if failed == "" {
			failed = stream
		}
	}

	type key struct {
		link  string
		group int
		phase int
	}
	load := make(map[key]float64)
	first := make(map[key]string)
	n := sched.Hyperperiod

	rejected := make(map[string]bool, len(sched.Rejected))
	for _, r := range sched.Rejected {
		rejected[r.Stream] = true
	}
	seen := make(map[string]int, len(sched.Streams))

	for idx := range sched.Streams {
		ss := &sched.Streams[idx]
		s, present := byName[ss.Stream]
		if !present {
			note(ss.Stream, "not a known stream")
			continue
		}
		seen[s.Name]++
		if seen[s.Name] == 2 {
			note(s.Name, "scheduled more than once")
		}
		if rejected[s.Name] {
			note(s.Name, "scheduled and rejected")
		}
		period, err := s.periodCycles(cfg.CycleLength)
		if err != nil {
			note(s.Name, "%v", err)
			continue
		}
		if n <= 0 || n%period != 0 {
			note(s.Name, "period of %d cycles does not divide hyperperiod %d", period, n)
			continue
		}
		if len(ss.Hops) == 0 {
			note(s.Name, "empty route")
			continue
		}

		// route
		here, visited := s.Src, map[string]bool{s.Src: true}
		for _, h := range ss.Hops {
			l, present := net.Link(h.Link)
			if !present {
				note(s.Name, "unknown link %s", h.Link)
				break
			}
			if l.From != here || h.From != l.From || h.To != l.To {
				note(s.Name, "link %s does not continue the route at %s", h.Link, here)
				break
			}
			if visited[l.To] {
				note(s.Name, "route revisits %s", l.To)
				break
			}
			visited[l.To] = true
			here = l.To
		}
		if here != s.Dst {
			note(s.Name, "route ends at %s, not %s", here, s.Dst)
		}
		if len(s.Path) > 0 && !equalPaths(s.Path, ss.Path()) {
			note(s.Name, "route differs from the fixed path")
		}

		// labels
		if !shaper.Start(ss.Hops[0].Label) {
			note(s.Name, "label %s cannot start a route", ss.Hops[0].Label)
		}
		eligible := false
		for _, pf := range shaper.Profiles(s, period) {
			eligible = eligible || pf.Instance == ss.Hops[0].Label.Instance
		}
		if !eligible {
			note(s.Name, "instance %d not eligible for period %d", ss.Hops[0].Label.Instance, period)
		}
		for k, h := range ss.Hops {
			if !shaper.Consistent(h.Label) {
				note(s.Name, "label %s on %s is inconsistent", h.Label, h.Link)
			}
			if k > 0 && !shaper.Follows(ss.Hops[k-1].Label, h.Label) {
				note(s.Name, "label %s on %s cannot follow %s", h.Label, h.Link, ss.Hops[k-1].Label)
			}
			if !deviceAllows(shaper, cfg, h.From, h.Label) {
				note(s.Name, "label %s on %s exceeds the queue limit of %s", h.Label, h.Link, h.From)
			}
		}

		// latency
		latency := routeLatency(net, shaper, cfg.CycleLength, ss.Hops)
		if math.Abs(latency-ss.Latency) > validateTol {
			note(s.Name, "reported latency %g, computed %g", ss.Latency, latency)
		}
		if latency > s.Bound+validateTol {
			note(s.Name, "latency %g exceeds bound %g", latency, s.Bound)
		}

		// load, for the capacity check below
		for _, h := range ss.Hops {
			g := shaper.Group(h.Label)
			for rel := 0; rel < n; rel += period {
				k := key{link: h.Link, group: g, phase: (rel + h.Label.Offset) % n}
				load[k] += s.FrameSize
				if _, present := first[k]; !present {
					first[k] = s.Name
				}
			}
		}
	}

	for _, s := range streams {
		if seen[s.Name] == 0 && !rejected[s.Name] {
			note(s.Name, "missing from the schedule")
		}
	}

	order := make(map[string]int)
	for idx, l := range net.Links() {
		order[l.Name] = idx
	}
	keys := make([]key, 0, len(load))
	for k := range load {
		keys = append(keys, k)
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

	usage := make([]LinkUsage, 0, len(keys))
	for _, k := range keys {
		l, present := net.Link(k.link)
		if !present || k.group < 0 || k.group >= shaper.NumGroups() {
			continue
		}
		limit := shaper.Capacity(l, k.group)
		if load[k] > limit+validateTol {
			problems = append(problems, fmt.Sprintf("link %s group %d phase %d: load %g exceeds capacity %g",
				k.link, k.group, k.phase, load[k], limit))
			if failed == "" {
				failed = first[k]
			}
		}
		usage = append(usage, LinkUsage{Link: k.link, Group: k.group, Phase: k.phase, Load: load[k], Capacity: limit})
	}

	if len(problems) > 0 {
		return nil, &ExtractionError{Stream: failed, Problems: problems}
	}
	return usage, nil
}

// deviceAllows reports whether a label is within the queue limit of the
// device whose egress port it is used on
func deviceAllows(shaper Shaper, cfg CycleConfig, dev string, l Label) bool {
	if shaper.Discipline() == MultiCQF {
		return l.Instance < cfg.deviceLimit(dev, shaper.NumGroups())
	}
	return l.Queue < cfg.deviceLimit(dev, cfg.Queues)
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}
