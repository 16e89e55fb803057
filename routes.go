package tsnsched

// routes.go converts a Network into the data structures of the gonum graph
// package and uses its shortest path algorithms for the distance queries
// the model builder and the shapers need.

import (
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The general approach is to weight each link by 1, so that a shortest path
// tree rooted in a device gives the hop distance from it to every other
// device. The same tree on the reversed graph gives hop distances towards a
// device. Those two distances bound where a stream can be on any simple
// path, and so which links and labels the builder needs variables for.
// Latency lower bounds use the same machinery with a per-link weight chosen
// by the shaper.

// router holds the graph representations of one Network. Shortest path
// trees are computed once per root and cached; the cache is shared by the
// builder's workers.
type router struct {
	net   *Network
	ids   map[string]int64
	names []string

	fwd graph.Graph
	rev graph.Graph

	mu     sync.Mutex
	fromSP map[int64]path.Shortest
	toSP   map[int64]path.Shortest
}

func newRouter(net *Network) *router {
	rt := &router{net: net, ids: make(map[string]int64), fromSP: make(map[int64]path.Shortest),
		toSP: make(map[int64]path.Shortest)}
	for idx, nd := range net.Nodes() {
		rt.ids[nd.Name] = int64(idx)
		rt.names = append(rt.names, nd.Name)
	}
	unit := func(*Link) float64 { return 1 }
	rt.fwd, _ = rt.buildConnGraph(unit, false)
	rt.rev, _ = rt.buildConnGraph(unit, true)
	return rt
}

// buildConnGraph returns a weighted directed graph with one gonum node per
// device and one edge per pair of connected devices. Of parallel links the
// lightest one is kept; the returned map names the link behind each edge.
func (rt *router) buildConnGraph(weight func(*Link) float64, reverse bool) (*simple.WeightedDirectedGraph, map[[2]int64]string) {
	connGraph := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, id := range rt.ids {
		connGraph.AddNode(simple.Node(id))
	}

	linkOf := make(map[[2]int64]string)
	for _, l := range rt.net.Links() {
		from, to := rt.ids[l.From], rt.ids[l.To]
		if reverse {
			from, to = to, from
		}
		w := weight(l)
		if e := connGraph.WeightedEdge(from, to); e != nil && e.Weight() <= w {
			continue
		}
		connGraph.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(from), T: simple.Node(to), W: w})
		linkOf[[2]int64{from, to}] = l.Name
	}
	return connGraph, linkOf
}

// getSPTree returns the shortest path tree rooted in 'from', computing and
// caching it when it is not already known
func (rt *router) getSPTree(from int64, reverse bool) path.Shortest {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	cache, g := rt.fromSP, rt.fwd
	if reverse {
		cache, g = rt.toSP, rt.rev
	}
	spTree, present := cache[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(simple.Node(from), g)
	cache[from] = spTree
	return spTree
}

// hopsFrom gives the number of links on a shortest path from src to every
// device reachable from it
func (rt *router) hopsFrom(src string) map[string]int {
	return rt.hops(src, false)
}

// hopsTo gives the number of links on a shortest path to dst from every
// device that can reach it
func (rt *router) hopsTo(dst string) map[string]int {
	return rt.hops(dst, true)
}

func (rt *router) hops(root string, reverse bool) map[string]int {
	id, present := rt.ids[root]
	if !present {
		return nil
	}
	spTree := rt.getSPTree(id, reverse)
	rtn := make(map[string]int)
	for idx, name := range rt.names {
		w := spTree.WeightTo(int64(idx))
		if !math.IsInf(w, 1) {
			rtn[name] = int(math.Round(w))
		}
	}
	return rtn
}

// shortestRoute returns the link names of a path from src to dst that
// minimizes the sum of weight over its links, together with that sum.
// The boolean is false when dst cannot be reached.
func (rt *router) shortestRoute(src, dst string, weight func(*Link) float64) ([]string, float64, bool) {
	srcID, okSrc := rt.ids[src]
	dstID, okDst := rt.ids[dst]
	if !okSrc || !okDst {
		return nil, math.Inf(1), false
	}
	connGraph, linkOf := rt.buildConnGraph(weight, false)
	nodeSeq, w := path.DijkstraFrom(simple.Node(srcID), connGraph).To(dstID)
	if len(nodeSeq) == 0 || math.IsInf(w, 1) {
		return nil, math.Inf(1), false
	}
	return convertNodeSeq(nodeSeq, linkOf), w, true
}

// convertNodeSeq turns a sequence of graph nodes into the names of the
// links between consecutive nodes
func convertNodeSeq(nsQ []graph.Node, linkOf map[[2]int64]string) []string {
	rtn := make([]string, 0, len(nsQ))
	for idx := 1; idx < len(nsQ); idx++ {
		rtn = append(rtn, linkOf[[2]int64{nsQ[idx-1].ID(), nsQ[idx].ID()}])
	}
	return rtn
}

// ShowPath returns the names of the devices visited by a sequence of links,
// separated by commas
func ShowPath(net *Network, links []string) string {
	if len(links) == 0 {
		return ""
	}
	sequence := make([]string, 0, len(links)+1)
	for idx, name := range links {
		l, present := net.Link(name)
		if !present {
			sequence = append(sequence, "?"+name)
			continue
		}
		if idx == 0 {
			sequence = append(sequence, l.From)
		}
		sequence = append(sequence, l.To)
	}
	return strings.Join(sequence, ",")
}
