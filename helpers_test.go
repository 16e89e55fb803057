package tsnsched_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iti/tsnsched"
)

// fixtures in the comma-separated case format
const (
	topo4sw = `vertex,PLC,node0_0_0_0,mac,00:00:00:00:00:08,PortNumber,1
vertex,PLC,node0_0_0_1,mac,00:00:00:00:00:09,PortNumber,1
vertex,PLC,node0_0_0_2,mac,00:00:00:00:00:08,PortNumber,1
vertex,SWITCH,sw_0_0,mac,00:00:00:00:00:00,PortNumber,8
vertex,SWITCH,sw_0_1,mac,00:00:00:00:00:00,PortNumber,8
vertex,SWITCH,sw_0_2,mac,00:00:00:00:00:00,PortNumber,8
vertex,SWITCH,sw_0_3,mac,00:00:00:00:00:00,PortNumber,8
edge,WIRE,sw_0_0.P0,node0_0_0_0,undirect,e1
edge,WIRE,sw_0_1.P0,node0_0_0_1,undirect,e2
edge,WIRE,sw_0_2.P0,sw_0_1.P0,undirect,e3
edge,WIRE,sw_0_2.P1,sw_0_0.P0,undirect,e4
edge,WIRE,sw_0_3.P0,node0_0_0_0,undirect,e5
edge,WIRE,sw_0_3.P1,node0_0_0_1,undirect,e6
edge,WIRE,sw_0_2.P2,node0_0_0_2,undirect,e7
`
	flows1 = `FLOW,7,0,VLAN_0_Flow_0,ISOCHRONOUS_REAL_TIME,node0_0_0_0,node0_0_0_1,NO,50,MICRO_SECOND,50,MICRO_SECOND,300
FLOW,7,1,VLAN_0_Flow_1,ISOCHRONOUS_REAL_TIME,node0_0_0_0,node0_0_0_1,NO,100,MICRO_SECOND,100,MICRO_SECOND,187
FLOW,7,2,VLAN_0_Flow_2,ISOCHRONOUS_REAL_TIME,node0_0_0_0,node0_0_0_2,NO,50,MICRO_SECOND,50,MICRO_SECOND,300
`
	swConfig = "7,1,0.3,1\n6,2,0.25,4\n5,3,0.25,8\n4,1,0.2,8"
)

// testConfig is a 10us cycle with 1000 bit links and three CSQF queues
func testConfig() tsnsched.CycleConfig {
	return tsnsched.CycleConfig{CycleLength: 10, LinkSpeed: 100, Queues: 3, MaxHyperperiod: 64}
}

// pairNetwork is two end systems joined by one link l1 from A to B
func pairNetwork(t *testing.T, capacity float64) *tsnsched.Network {
	net := tsnsched.NewNetwork("pair")
	require.NoError(t, net.AddNode("A", tsnsched.EndSystem))
	require.NoError(t, net.AddNode("B", tsnsched.EndSystem))
	require.NoError(t, net.AddLink("l1", "A", "B", capacity, 0))
	return net
}

// lineNetwork is A -> S1 -> ... -> Sn -> B with links l1 .. l(n+1)
func lineNetwork(t *testing.T, switches int, capacity, delay float64) *tsnsched.Network {
	net := tsnsched.NewNetwork("line")
	names := []string{"A"}
	for idx := 1; idx <= switches; idx++ {
		names = append(names, fmt.Sprintf("S%d", idx))
	}
	names = append(names, "B")
	for idx, name := range names {
		kind := tsnsched.Switch
		if idx == 0 || idx == len(names)-1 {
			kind = tsnsched.EndSystem
		}
		require.NoError(t, net.AddNode(name, kind))
	}
	for idx := 1; idx < len(names); idx++ {
		require.NoError(t, net.AddLink(fmt.Sprintf("l%d", idx), names[idx-1], names[idx], capacity, delay))
	}
	return net
}

func stream(id int, name, src, dst string, period, size, bound float64) *tsnsched.Stream {
	return &tsnsched.Stream{ID: id, Name: name, Src: src, Dst: dst, Period: period, FrameSize: size, Bound: bound}
}

// legacyProblem reads the four switch fixture
func legacyProblem(t *testing.T, d tsnsched.Discipline, cfg tsnsched.CycleConfig) tsnsched.Problem {
	td, err := tsnsched.ReadLegacyTopo("1_topo.txt", []byte(topo4sw))
	require.NoError(t, err)
	sld, err := tsnsched.ReadLegacyFlows("1_flows.txt", []byte(flows1))
	require.NoError(t, err)
	net, err := td.Transform(cfg)
	require.NoError(t, err)
	return tsnsched.Problem{Network: net, Streams: sld.Transform(), Discipline: d, Config: cfg}
}

// cloneSchedule copies the streams and hops so a test may tamper with them
func cloneSchedule(s *tsnsched.Schedule) *tsnsched.Schedule {
	c := *s
	c.Streams = make([]tsnsched.StreamSchedule, len(s.Streams))
	for idx, ss := range s.Streams {
		ss.Hops = append([]tsnsched.Hop(nil), ss.Hops...)
		c.Streams[idx] = ss
	}
	c.Usage = append([]tsnsched.LinkUsage(nil), s.Usage...)
	return &c
}
