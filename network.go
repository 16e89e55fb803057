package tsnsched

import (
	"fmt"
	"strings"
)

// NodeKind distinguishes devices that originate and terminate streams from
// devices that only forward them
type NodeKind int

const (
	EndSystem NodeKind = iota
	Switch
)

var nodeKindToStr = map[NodeKind]string{EndSystem: "endsystem", Switch: "switch"}

func (k NodeKind) String() string {
	return nodeKindToStr[k]
}

// ParseNodeKind accepts the device names of description files and of the
// legacy text format
func ParseNodeKind(name string) (NodeKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "endsystem", "host", "endpt", "plc", "es":
		return EndSystem, nil
	case "switch", "sw", "bridge":
		return Switch, nil
	}
	return EndSystem, fmt.Errorf("%w: unknown node kind %q", ErrBadConfig, name)
}

// A Node is a device of the network. In and Out hold the names of its
// incident links, in the order the links were added.
type Node struct {
	Name string
	Kind NodeKind
	In   []string
	Out  []string
}

// A Link is one direction of a connection between two nodes. Capacity is in
// bits per base cycle, Delay (propagation plus processing) in microseconds.
type Link struct {
	Name     string
	From     string
	To       string
	Capacity float64
	Delay    float64
}

// Network is a directed graph of nodes and links. It is built once and is
// read-only afterwards, so it may be shared between runs.
type Network struct {
	Name string

	nodes     map[string]*Node
	nodeOrder []string
	links     map[string]*Link
	linkOrder []string
}

// NewNetwork is a constructor
func NewNetwork(name string) *Network {
	return &Network{Name: name, nodes: make(map[string]*Node), links: make(map[string]*Link)}
}

// AddNode includes a device
func (n *Network) AddNode(name string, kind NodeKind) error {
	if name == "" {
		return buildErr("node", name, ErrBadConfig, "empty node name")
	}
	if _, present := n.nodes[name]; present {
		return buildErr("node", name, ErrDuplicateName, "")
	}
	n.nodes[name] = &Node{Name: name, Kind: kind}
	n.nodeOrder = append(n.nodeOrder, name)
	return nil
}

// AddLink includes a directed link between two known nodes
func (n *Network) AddLink(name, from, to string, capacity, delay float64) error {
	if _, present := n.links[name]; present {
		return buildErr("link", name, ErrDuplicateName, "")
	}
	src, present := n.nodes[from]
	if !present {
		return buildErr("link", name, ErrUnknownNode, "source %q", from)
	}
	dst, present := n.nodes[to]
	if !present {
		return buildErr("link", name, ErrUnknownNode, "destination %q", to)
	}
	if from == to {
		return buildErr("link", name, ErrBadConfig, "link from %s to itself", from)
	}
	if !(capacity > 0) {
		return buildErr("link", name, ErrBadConfig, "capacity %g must be positive", capacity)
	}
	if delay < 0 {
		return buildErr("link", name, ErrBadConfig, "delay %g must not be negative", delay)
	}

	n.links[name] = &Link{Name: name, From: from, To: to, Capacity: capacity, Delay: delay}
	n.linkOrder = append(n.linkOrder, name)
	src.Out = append(src.Out, name)
	dst.In = append(dst.In, name)
	return nil
}

// AddDuplex includes the pair of links name (a to b) and name.rev (b to a)
func (n *Network) AddDuplex(name, a, b string, capacity, delay float64) error {
	if err := n.AddLink(name, a, b, capacity, delay); err != nil {
		return err
	}
	return n.AddLink(ReverseLinkName(name), b, a, capacity, delay)
}

// ReverseLinkName names the second direction of a duplex link
func ReverseLinkName(name string) string {
	return name + ".rev"
}

// Node looks up a device by name
func (n *Network) Node(name string) (*Node, bool) {
	nd, present := n.nodes[name]
	return nd, present
}

// Link looks up a link by name
func (n *Network) Link(name string) (*Link, bool) {
	l, present := n.links[name]
	return l, present
}

// Nodes returns the devices in the order they were added
func (n *Network) Nodes() []*Node {
	rtn := make([]*Node, 0, len(n.nodeOrder))
	for _, name := range n.nodeOrder {
		rtn = append(rtn, n.nodes[name])
	}
	return rtn
}

// Links returns the links in the order they were added
func (n *Network) Links() []*Link {
	rtn := make([]*Link, 0, len(n.linkOrder))
	for _, name := range n.linkOrder {
		rtn = append(rtn, n.links[name])
	}
	return rtn
}

// EndSystems returns the names of the devices that can originate streams
func (n *Network) EndSystems() []string {
	var rtn []string
	for _, name := range n.nodeOrder {
		if n.nodes[name].Kind == EndSystem {
			rtn = append(rtn, name)
		}
	}
	return rtn
}

// NumNodes returns the number of devices
func (n *Network) NumNodes() int {
	return len(n.nodeOrder)
}

// NumLinks returns the number of directed links
func (n *Network) NumLinks() int {
	return len(n.linkOrder)
}
