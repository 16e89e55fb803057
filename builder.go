package tsnsched

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/go-logr/logr"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/iti/tsnsched/milp"
)

// Constraint families of the program. Diagnosis relaxes them by name.
const (
	FamilyRoute        = "route"
	FamilyConservation = "conservation"
	FamilyTransition   = "transition"
	FamilyLatency      = "latency"
	FamilyCapacity     = "capacity"
	FamilyFixed        = "fixed"
	FamilyObjective    = "objective"
)

// Problem is the input of one scheduling run
type Problem struct {
	Network    *Network
	Streams    []*Stream
	Discipline Discipline
	Config     CycleConfig
}

// labelVar ties a label of a hop to its binary variable
type labelVar struct {
	Label Label
	Var   int
}

// linkVars holds the variables of one stream on one link: Use is one when
// the stream is routed over the link, Labels hold one binary per label
type linkVars struct {
	Link   *Link
	Use    int
	Labels []labelVar
}

// streamVars holds the variables of one scheduled stream
type streamVars struct {
	Stream *Stream
	Period int
	Links  []*linkVars
	byLink map[string]*linkVars
}

// Model is a built program together with what is needed to decode a
// solver assignment
type Model struct {
	Program     *milp.Program
	Network     *Network
	Shaper      Shaper
	Config      CycleConfig
	Objective   Objective
	Hyperperiod int

	// Rejected lists the streams left out of the program because they
	// cannot be scheduled whatever the other streams do
	Rejected []StaticInfeasibility

	streams []*streamVars
}

// Scheduled returns the streams that are part of the program
func (m *Model) Scheduled() []*Stream {
	rtn := make([]*Stream, 0, len(m.streams))
	for _, sv := range m.streams {
		rtn = append(rtn, sv.Stream)
	}
	return rtn
}

// linkDomain is a link a stream may use and the labels it may carry there
type linkDomain struct {
	link   *Link
	labels []Label
}

// fragment is the per-stream part of the model, computed independently of
// every other stream
type fragment struct {
	stream   *Stream
	period   int
	domains  []linkDomain
	rejected *StaticInfeasibility
}

type capKey struct {
	link  int
	group int
	phase int
}

// Build translates a problem into an abstract program. Per-stream fragments
// are computed concurrently; they are merged in stream order by a single
// writer so that variable ids do not depend on scheduling.
func Build(ctx context.Context, prob Problem, opts ...Option) (*Model, error) {
	st := newSettings(opts)
	return build(ctx, prob, st)
}

func build(ctx context.Context, prob Problem, st *settings) (*Model, error) {
	net, cfg := prob.Network, prob.Config
	if net == nil {
		return nil, buildErr("network", "", ErrBadConfig, "no network")
	}
	if err := validateStreams(net, prob.Streams); err != nil {
		return nil, err
	}
	shaper, err := NewShaper(prob.Discipline, cfg, prob.Streams)
	if err != nil {
		return nil, err
	}
	hyper, err := Hyperperiod(prob.Streams, cfg.CycleLength, shaper.CycleMultiple())
	if err != nil {
		return nil, err
	}
	if hyper > cfg.maxHyperperiod() {
		return nil, buildErr("streams", net.Name, ErrHyperperiod, "%d cycles > %d", hyper, cfg.maxHyperperiod())
	}

	log := st.log.WithValues("discipline", shaper.Discipline().String())
	log.V(1).Info("building program", "streams", len(prob.Streams), "nodes", net.NumNodes(),
		"links", net.NumLinks(), "hyperperiod", hyper, "shaper", shaper.Describe())

	rt := newRouter(net)
	frags := make([]*fragment, len(prob.Streams))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(st.workers)
	for idx, s := range prob.Streams {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frag, err := buildFragment(rt, shaper, cfg, s)
			if err != nil {
				return err
			}
			frags[idx] = frag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Model{
		Program:     milp.New(fmt.Sprintf("%s-%s", net.Name, shaper.Discipline())),
		Network:     net,
		Shaper:      shaper,
		Config:      cfg,
		Objective:   st.objective,
		Hyperperiod: hyper,
	}
	mg := &merger{m: m, log: log, linkIdx: make(map[string]int), capTerms: make(map[capKey][]milp.Term)}
	for idx, l := range net.Links() {
		mg.linkIdx[l.Name] = idx
	}
	for _, frag := range frags {
		if err := mg.add(frag); err != nil {
			return nil, err
		}
	}
	mg.capacity()
	if err := m.applyObjective(mg.capKeys, mg.capTerms); err != nil {
		return nil, err
	}

	log.V(1).Info("program built", "vars", m.Program.NumVars(), "constraints", m.Program.NumConstraints(),
		"rejected", len(m.Rejected), "families", m.Program.Families())

	return m, nil
}

// buildFragment computes the links and labels one stream may use, or the
// reason it cannot be scheduled at all
func buildFragment(rt *router, shaper Shaper, cfg CycleConfig, s *Stream) (*fragment, error) {
	period, err := s.periodCycles(cfg.CycleLength)
	if err != nil {
		return nil, err
	}
	frag := &fragment{stream: s, period: period}
	reject := func(reason string, lb float64) (*fragment, error) {
		frag.rejected = &StaticInfeasibility{Stream: s.Name, Reason: reason, LowerBound: lb, Bound: s.Bound}
		return frag, nil
	}

	profiles := shaper.Profiles(s, period)
	if len(profiles) == 0 {
		return reject("no eligible queue instance", 0)
	}

	lb, reachable := latencyLowerBound(rt, cfg, profiles, s)
	if !reachable {
		return reject(fmt.Sprintf("%s cannot reach %s", s.Src, s.Dst), 0)
	}
	if lb > s.Bound+1e-9 {
		return reject(fmt.Sprintf("latency lower bound %g exceeds bound %g", lb, s.Bound), lb)
	}

	bc := boundCycles(s.Bound, cfg.CycleLength)
	for _, lw := range hopWindows(rt, s) {
		labels := shaper.Domain(s, period, lw.window, bc)
		if len(labels) > 0 {
			frag.domains = append(frag.domains, linkDomain{link: lw.link, labels: labels})
		}
	}
	frag.domains = pruneDomains(shaper, s, frag.domains)
	if len(frag.domains) == 0 {
		return reject("no label sequence reaches the destination within the bound", lb)
	}
	return frag, nil
}

// latencyLowerBound is the smallest latency any route and label sequence
// can achieve, ignoring every other stream
func latencyLowerBound(rt *router, cfg CycleConfig, profiles []Profile, s *Stream) (float64, bool) {
	best, found := math.Inf(1), false
	for _, pf := range profiles {
		perHop := float64(pf.Span) * cfg.CycleLength
		var w float64
		if len(s.Path) > 0 {
			for _, name := range s.Path {
				l, _ := rt.net.Link(name)
				w += perHop + l.Delay
			}
		} else {
			var ok bool
			_, w, ok = rt.shortestRoute(s.Src, s.Dst, func(l *Link) float64 { return perHop + l.Delay })
			if !ok {
				continue
			}
		}
		found = true
		best = math.Min(best, float64(pf.Lead)*cfg.CycleLength+w)
	}
	return best, found
}

type linkWindow struct {
	link   *Link
	window HopWindow
}

// hopWindows lists the links that lie on some simple path of the stream,
// with their position bounds
func hopWindows(rt *router, s *Stream) []linkWindow {
	var rtn []linkWindow
	if len(s.Path) > 0 {
		for pos, name := range s.Path {
			l, _ := rt.net.Link(name)
			rtn = append(rtn, linkWindow{link: l, window: HopWindow{First: pos, Rest: len(s.Path) - 1 - pos,
				MaxBefore: pos, Source: pos == 0, Device: l.From}})
		}
		return rtn
	}

	maxLinks := rt.net.NumNodes() - 1
	from, to := rt.hopsFrom(s.Src), rt.hopsTo(s.Dst)
	for _, l := range rt.net.Links() {
		if l.From == s.Dst || l.To == s.Src {
			continue
		}
		before, ok1 := from[l.From]
		after, ok2 := to[l.To]
		if !ok1 || !ok2 || before+1+after > maxLinks {
			continue
		}
		rtn = append(rtn, linkWindow{link: l, window: HopWindow{First: before, Rest: after,
			MaxBefore: maxLinks - 1 - after, Source: l.From == s.Src, Device: l.From}})
	}
	return rtn
}

// pruneDomains removes labels that no start label leads to, and labels from
// which the destination cannot be reached. Offsets grow strictly along a
// path, so one pass in each direction of offset order suffices.
func pruneDomains(shaper Shaper, s *Stream, domains []linkDomain) []linkDomain {
	type entry struct {
		dom   int
		label Label
	}
	var entries []entry
	for d, ld := range domains {
		for _, l := range ld.labels {
			entries = append(entries, entry{dom: d, label: l})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].label.Offset < entries[j].label.Offset })

	mark := func(set map[string]map[Label]bool, node string, l Label) {
		if set[node] == nil {
			set[node] = make(map[Label]bool)
		}
		set[node][l] = true
	}

	// forward: arrivals[v][λ] when some reachable hop into v may be
	// followed by λ
	arrivals := make(map[string]map[Label]bool)
	reach := make([]bool, len(entries))
	for idx, e := range entries {
		link := domains[e.dom].link
		if link.From == s.Src {
			reach[idx] = shaper.Start(e.label)
		} else {
			reach[idx] = arrivals[link.From][e.label]
		}
		if reach[idx] && link.To != s.Dst {
			for _, succ := range shaper.Successors(e.label) {
				mark(arrivals, link.To, succ)
			}
		}
	}

	// backward: departures[v][λ] when a hop leaving v with λ can still
	// reach the destination
	departures := make(map[string]map[Label]bool)
	keep := make([]bool, len(entries))
	for idx := len(entries) - 1; idx >= 0; idx-- {
		e := entries[idx]
		if !reach[idx] {
			continue
		}
		link := domains[e.dom].link
		if link.To == s.Dst {
			keep[idx] = true
		} else {
			for _, succ := range shaper.Successors(e.label) {
				if departures[link.To][succ] {
					keep[idx] = true
					break
				}
			}
		}
		if keep[idx] {
			mark(departures, link.From, e.label)
		}
	}

	kept := make([][]Label, len(domains))
	for idx, e := range entries {
		if keep[idx] {
			kept[e.dom] = append(kept[e.dom], e.label)
		}
	}
	var rtn []linkDomain
	for d, ld := range domains {
		if len(kept[d]) == 0 {
			continue
		}
		sortLabels(kept[d])
		rtn = append(rtn, linkDomain{link: ld.link, labels: kept[d]})
	}
	return rtn
}

// merger appends fragments to the program. It is only ever used by one
// goroutine.
type merger struct {
	m        *Model
	log      logr.Logger
	linkIdx  map[string]int
	capTerms map[capKey][]milp.Term
	capKeys  []capKey
}

func (mg *merger) add(frag *fragment) error {
	m, p := mg.m, mg.m.Program
	s := frag.stream
	if frag.rejected != nil {
		m.Rejected = append(m.Rejected, *frag.rejected)
		mg.log.Info("stream statically infeasible", "stream", s.Name, "reason", frag.rejected.Reason)
		return nil
	}

	sv := &streamVars{Stream: s, Period: frag.period, byLink: make(map[string]*linkVars)}
	for _, ld := range frag.domains {
		lv := &linkVars{Link: ld.link, Use: p.AddBinary(fmt.Sprintf("r[%s,%s]", s.Name, ld.link.Name))}
		route := []milp.Term{{Var: lv.Use, Coef: 1}}
		for _, l := range ld.labels {
			y := p.AddBinary(fmt.Sprintf("y[%s,%s,%s]", s.Name, ld.link.Name, l))
			lv.Labels = append(lv.Labels, labelVar{Label: l, Var: y})
			route = append(route, milp.Term{Var: y, Coef: -1})
		}
		p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("route[%s,%s]", s.Name, ld.link.Name),
			Family: FamilyRoute, Terms: route, Op: milp.EQ, RHS: 0})
		sv.Links = append(sv.Links, lv)
		sv.byLink[ld.link.Name] = lv
	}

	mg.conservation(sv)
	mg.transitions(sv)
	if len(s.Path) > 0 {
		for _, name := range s.Path {
			p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("fixed[%s,%s]", s.Name, name), Family: FamilyFixed,
				Terms: []milp.Term{{Var: sv.byLink[name].Use, Coef: 1}}, Op: milp.EQ, RHS: 1})
		}
	}
	if err := mg.latency(sv); err != nil {
		return err
	}
	mg.collectLoad(sv)

	m.streams = append(m.streams, sv)
	return nil
}

// conservation makes the used links of a stream a single path: one link
// leaves the source, one enters the destination, and every other device is
// entered at most once and left as often as it is entered
func (mg *merger) conservation(sv *streamVars) {
	p, s := mg.m.Program, sv.Stream
	for _, nd := range mg.m.Network.Nodes() {
		var in, out []milp.Term
		for _, name := range nd.In {
			if lv, present := sv.byLink[name]; present {
				in = append(in, milp.Term{Var: lv.Use, Coef: 1})
			}
		}
		for _, name := range nd.Out {
			if lv, present := sv.byLink[name]; present {
				out = append(out, milp.Term{Var: lv.Use, Coef: 1})
			}
		}
		name := fmt.Sprintf("flow[%s,%s]", s.Name, nd.Name)
		switch {
		case nd.Name == s.Src:
			p.AddConstraint(milp.Constraint{Name: name, Family: FamilyConservation, Terms: out, Op: milp.EQ, RHS: 1})
		case nd.Name == s.Dst:
			p.AddConstraint(milp.Constraint{Name: name, Family: FamilyConservation, Terms: in, Op: milp.EQ, RHS: 1})
		case len(in) > 0 || len(out) > 0:
			balance := append(append([]milp.Term(nil), in...), negateTerms(out)...)
			p.AddConstraint(milp.Constraint{Name: name, Family: FamilyConservation, Terms: balance, Op: milp.EQ, RHS: 0})
			if len(in) > 1 {
				p.AddConstraint(milp.Constraint{Name: name + ".once", Family: FamilyConservation, Terms: in, Op: milp.LE, RHS: 1})
			}
		}
	}
}

// transitions forces a frame arriving at a device with a label to leave it
// with one of the label's successors
func (mg *merger) transitions(sv *streamVars) {
	p, s := mg.m.Program, sv.Stream
	for _, nd := range mg.m.Network.Nodes() {
		if nd.Name == s.Src || nd.Name == s.Dst {
			continue
		}
		arriving := make(map[Label][]milp.Term)
		var order []Label
		for _, name := range nd.In {
			lv, present := sv.byLink[name]
			if !present {
				continue
			}
			for _, lab := range lv.Labels {
				if _, seen := arriving[lab.Label]; !seen {
					order = append(order, lab.Label)
				}
				arriving[lab.Label] = append(arriving[lab.Label], milp.Term{Var: lab.Var, Coef: 1})
			}
		}
		if len(order) == 0 {
			continue
		}
		sortLabels(order)

		for _, l := range order {
			succ := mg.m.Shaper.Successors(l)
			row := arriving[l]
			for _, name := range nd.Out {
				lv, present := sv.byLink[name]
				if !present {
					continue
				}
				for _, lab := range lv.Labels {
					if slices.Contains(succ, lab.Label) {
						row = append(row, milp.Term{Var: lab.Var, Coef: -1})
					}
				}
			}
			p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("next[%s,%s,%s]", s.Name, nd.Name, l),
				Family: FamilyTransition, Terms: row, Op: milp.LE, RHS: 0})
		}
	}
}

// latency bounds the end-to-end delay. The cycle part is decided by the
// label on the last hop; when links carry delay the sum of delays along
// the route is bounded for every possible last label through an indicator.
func (mg *merger) latency(sv *streamVars) error {
	m, p, s := mg.m, mg.m.Program, sv.Stream
	var delays []milp.Term
	for _, lv := range sv.Links {
		if lv.Link.Delay > 0 {
			delays = append(delays, milp.Term{Var: lv.Use, Coef: lv.Link.Delay})
		}
	}
	if len(delays) == 0 {
		return nil
	}
	for _, lv := range sv.Links {
		if lv.Link.To != s.Dst {
			continue
		}
		for _, lab := range lv.Labels {
			rhs := s.Bound - float64(lab.Label.Offset+m.Shaper.Span(lab.Label))*m.Config.CycleLength
			name := fmt.Sprintf("latency[%s,%s,%s]", s.Name, lv.Link.Name, lab.Label)
			if _, err := milp.AddIndicator(p, name, FamilyLatency, lab.Var, delays, milp.LE, rhs); err != nil {
				return buildErr("stream", s.Name, ErrBadStream, "%v", err)
			}
		}
	}
	return nil
}

// collectLoad records, for every link, group and phase of the
// hyperperiod, which label variables put load there
func (mg *merger) collectLoad(sv *streamVars) {
	m := mg.m
	n := m.Hyperperiod
	for _, lv := range sv.Links {
		li := mg.linkIdx[lv.Link.Name]
		for _, lab := range lv.Labels {
			g := m.Shaper.Group(lab.Label)
			for rel := 0; rel < n; rel += sv.Period {
				key := capKey{link: li, group: g, phase: (rel + lab.Label.Offset) % n}
				if _, present := mg.capTerms[key]; !present {
					mg.capKeys = append(mg.capKeys, key)
				}
				mg.capTerms[key] = append(mg.capTerms[key], milp.Term{Var: lab.Var, Coef: sv.Stream.FrameSize})
			}
		}
	}
}

// capacity emits one row per loaded (link, group, phase) that could
// overflow
func (mg *merger) capacity() {
	m, p := mg.m, mg.m.Program
	sort.Slice(mg.capKeys, func(i, j int) bool {
		a, b := mg.capKeys[i], mg.capKeys[j]
		if a.link != b.link {
			return a.link < b.link
		}
		if a.group != b.group {
			return a.group < b.group
		}
		return a.phase < b.phase
	})

	links := m.Network.Links()
	for _, key := range mg.capKeys {
		terms := mg.capTerms[key]
		link := links[key.link]
		limit := m.Shaper.Capacity(link, key.group)
		worst := 0.0
		for _, t := range terms {
			worst += t.Coef
		}
		if worst <= limit+1e-9 {
			continue
		}
		p.AddConstraint(milp.Constraint{Name: fmt.Sprintf("cap[%s,%d,%d]", link.Name, key.group, key.phase),
			Family: FamilyCapacity, Terms: terms, Op: milp.LE, RHS: limit})
	}
}

func negateTerms(terms []milp.Term) []milp.Term {
	rtn := make([]milp.Term, len(terms))
	for idx, t := range terms {
		rtn[idx] = milp.Term{Var: t.Var, Coef: -t.Coef}
	}
	return rtn
}

func sortLabels(labels []Label) {
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Instance != labels[j].Instance {
			return labels[i].Instance < labels[j].Instance
		}
		return labels[i].Offset < labels[j].Offset
	})
}
