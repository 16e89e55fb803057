package tsnsched_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iti/tsnsched"
)

func TestReadLegacyTopo(t *testing.T) {
	td, err := tsnsched.ReadLegacyTopo("1_topo.txt", []byte(topo4sw))
	require.NoError(t, err)
	assert.Len(t, td.Nodes, 7)
	require.Len(t, td.Links, 7)
	assert.Equal(t, tsnsched.NodeDesc{Name: "sw_0_0", Kind: "SWITCH"}, td.Nodes[3])
	assert.Equal(t, tsnsched.LinkDesc{Name: "e1", From: "sw_0_0", To: "node0_0_0_0", Duplex: true}, td.Links[0])

	cfg := tsnsched.DefaultCycleConfig()
	net, err := td.Transform(cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, net.NumNodes())
	assert.Equal(t, 14, net.NumLinks())
	assert.Equal(t, []string{"node0_0_0_0", "node0_0_0_1", "node0_0_0_2"}, net.EndSystems())

	rev, ok := net.Link(tsnsched.ReverseLinkName("e1"))
	require.True(t, ok)
	assert.Equal(t, "node0_0_0_0", rev.From)
	assert.Equal(t, "sw_0_0", rev.To)
	assert.InDelta(t, 10000.0, rev.Capacity, 1e-9)

	_, err = tsnsched.ReadLegacyTopo("bad.txt", []byte("node,x,y\n"))
	assert.Error(t, err)
}

func TestReadLegacyFlows(t *testing.T) {
	sld, err := tsnsched.ReadLegacyFlows("1_flows.txt", []byte(flows1))
	require.NoError(t, err)
	require.Len(t, sld.Streams, 3)
	want := tsnsched.Stream{ID: 0, Name: "VLAN_0_Flow_0", Src: "node0_0_0_0", Dst: "node0_0_0_1",
		Period: 50, FrameSize: 2400, Bound: 50, Priority: 7}
	if diff := cmp.Diff(want, sld.Streams[0]); diff != "" {
		t.Errorf("first flow (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 1496.0, sld.Streams[1].FrameSize, 1e-9)
	assert.InDelta(t, 100.0, sld.Streams[1].Period, 1e-9)

	ms := strings.ReplaceAll(flows1, "MICRO_SECOND", "MILLI_SECOND")
	sld, err = tsnsched.ReadLegacyFlows("1_flows.txt", []byte(ms))
	require.NoError(t, err)
	assert.InDelta(t, 50000.0, sld.Streams[0].Period, 1e-9)

	_, err = tsnsched.ReadLegacyFlows("1_flows.txt", []byte(strings.ReplaceAll(flows1, "MICRO_SECOND", "FORTNIGHT")))
	assert.Error(t, err)
}

func TestReadLegacySwitchConfig(t *testing.T) {
	inst, err := tsnsched.ReadLegacySwitchConfig("config.csv", []byte(swConfig))
	require.NoError(t, err)
	require.Len(t, inst, 4)
	assert.Equal(t, tsnsched.Instance{Priority: 6, Queues: 2, BandwidthFraction: 0.25, CycleCoefficient: 4}, inst[1])

	cfg := tsnsched.DefaultCycleConfig()
	cfg.Instances = inst
	assert.NoError(t, cfg.Validate(tsnsched.MultiCQF))
}

func TestReadLegacyCase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test", "4sw.proto")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, tsnsched.LegacyTopoFile), []byte(topo4sw), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, tsnsched.LegacyFlowsFile), []byte("# flows\n\n"+flows1), 0o644))

	td, sld, err := tsnsched.ReadLegacyCase(dir)
	require.NoError(t, err)
	assert.Equal(t, "test_4sw.proto", td.Name)
	assert.Equal(t, td.Name, sld.ListName)
	assert.Len(t, sld.Streams, 3)

	_, _, err = tsnsched.ReadLegacyCase(t.TempDir())
	assert.Error(t, err)
}

func TestDescRoundTrip(t *testing.T) {
	dir := t.TempDir()

	td := tsnsched.CreateTopoDesc("pair")
	td.AddNode("A", "endsystem")
	td.AddNode("B", "host")
	td.AddNode("S", "switch")
	td.AddLink(tsnsched.LinkDesc{Name: "a", From: "A", To: "S", Capacity: 800, Delay: 1.5, Duplex: true})
	td.AddLink(tsnsched.LinkDesc{Name: "b", From: "S", To: "B"})
	for _, name := range []string{"topo.yaml", "topo.json"} {
		file := filepath.Join(dir, name)
		require.NoError(t, td.WriteToFile(file))
		back, err := tsnsched.ReadTopoDesc(file, tsnsched.IsYAML(file), nil)
		require.NoError(t, err)
		if diff := cmp.Diff(td, back); diff != "" {
			t.Errorf("%s (-want +got):\n%s", name, diff)
		}
	}
	assert.Error(t, td.WriteToFile(filepath.Join(dir, "topo.txt")))

	net, err := td.Transform(testConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, net.NumLinks())
	b, ok := net.Link("b")
	require.True(t, ok)
	assert.InDelta(t, 1000.0, b.Capacity, 1e-9)

	sld := tsnsched.CreateStreamListDesc("few")
	sld.AddStream(tsnsched.Stream{ID: 7, Name: "late", Src: "A", Dst: "B", Period: 20, FrameSize: 100, Bound: 40})
	sld.AddStream(tsnsched.Stream{Name: "first", Src: "B", Dst: "A", Period: 10, FrameSize: 100, Bound: 40,
		Path: []string{"b.rev", "a.rev"}})
	file := filepath.Join(dir, "streams.yaml")
	require.NoError(t, sld.WriteToFile(file))
	back, err := tsnsched.ReadStreamListDesc(file, true, nil)
	require.NoError(t, err)
	streams := back.Transform()
	require.Len(t, streams, 2)
	assert.Equal(t, "first", streams[0].Name)
	assert.Equal(t, 2, streams[0].ID)
	assert.Equal(t, []string{"b.rev", "a.rev"}, streams[0].Path)
}

func TestReadShaperDesc(t *testing.T) {
	sd, err := tsnsched.ReadShaperDesc("shaper.json", false, []byte(`{"discipline":"mcqf","config":{"instancecount":3}}`))
	require.NoError(t, err)
	assert.Equal(t, tsnsched.MultiCQF, sd.Discipline)
	assert.Equal(t, 3, sd.Config.InstanceCount)
	assert.InDelta(t, tsnsched.DefaultCycleLength, sd.Config.CycleLength, 1e-9)

	inst := sd.Config.ResolveInstances(100)
	require.Len(t, inst, 3)
	assert.Equal(t, tsnsched.Instance{Queues: 2, BandwidthFraction: 1.0 / 3, CycleCoefficient: 3}, inst[2])

	_, err = tsnsched.ReadShaperDesc("shaper.json", false, []byte(`{"discipline":"fifo"}`))
	assert.Error(t, err)
}

func TestResolveInstancesFromBound(t *testing.T) {
	cfg := tsnsched.DefaultCycleConfig()
	assert.Len(t, cfg.ResolveInstances(35), 4)
	assert.Len(t, cfg.ResolveInstances(5), 1)
	assert.Len(t, cfg.ResolveInstances(1000), 8)
}

func TestScheduleFiles(t *testing.T) {
	prob := legacyProblem(t, tsnsched.CSQF, tsnsched.DefaultCycleConfig())
	out, err := tsnsched.Run(context.Background(), prob, tsnsched.WithRunID("files"))
	require.NoError(t, err)
	require.NotNil(t, out.Schedule)

	dir := t.TempDir()
	file := filepath.Join(dir, "solution.json")
	require.NoError(t, tsnsched.WriteSolution(file, out.Schedule))
	back, err := tsnsched.ReadSchedule(file, false, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(out.Schedule, back); diff != "" {
		t.Errorf("schedule (-want +got):\n%s", diff)
	}

	csvFile := filepath.Join(dir, "solution.csv")
	require.NoError(t, tsnsched.WriteSolution(csvFile, out.Schedule))
	body, err := os.ReadFile(csvFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Equal(t, "stream,src,dst,instance,latency,bound,path", lines[0])
	assert.Len(t, lines, 4)
	usage, err := os.ReadFile(filepath.Join(dir, "solution_usage.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(usage), "link,group,phase,load,capacity,utilization"))

	lp := filepath.Join(dir, "program.lp")
	require.NoError(t, tsnsched.WriteProgram(lp, out.Model.Program))
	body, err = os.ReadFile(lp)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Binaries")
}

func TestScheduleCSV(t *testing.T) {
	sched := &tsnsched.Schedule{
		CycleLength: 10,
		Hyperperiod: 1,
		Streams: []tsnsched.StreamSchedule{{Stream: "s1", Src: "A", Dst: "B", Latency: 20, Bound: 30,
			Hops: []tsnsched.Hop{
				{Link: "l1", From: "A", To: "S1", Label: tsnsched.Label{Offset: 0, Queue: 0}},
				{Link: "l2", From: "S1", To: "B", Label: tsnsched.Label{Offset: 1, Queue: 1}},
			}}},
		Usage: []tsnsched.LinkUsage{{Link: "l1", Load: 250, Capacity: 1000}},
	}
	var buf bytes.Buffer
	require.NoError(t, tsnsched.WriteScheduleCSV(&buf, sched))
	assert.Contains(t, buf.String(), "A|l1|0|0-S1|l2|0|1")

	buf.Reset()
	require.NoError(t, tsnsched.WriteUsageCSV(&buf, sched))
	assert.Contains(t, buf.String(), "0.25")
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "here.yaml")
	require.NoError(t, os.WriteFile(present, []byte("x: 1\n"), 0o644))

	assert.NoError(t, tsnsched.CheckReadableFiles([]string{present, ""}))
	assert.Error(t, tsnsched.CheckReadableFiles([]string{filepath.Join(dir, "missing.yaml")}))
	assert.NoError(t, tsnsched.CheckOutputFiles([]string{filepath.Join(dir, "new.yaml")}))
	assert.Error(t, tsnsched.CheckOutputFiles([]string{filepath.Join(dir, "nodir", "new.yaml")}))
}

func TestGenerateStreams(t *testing.T) {
	cfg := tsnsched.DefaultCycleConfig()
	td, err := tsnsched.ReadLegacyTopo("1_topo.txt", []byte(topo4sw))
	require.NoError(t, err)
	net, err := td.Transform(cfg)
	require.NoError(t, err)

	gc := tsnsched.DefaultGenConfig(cfg)
	gc.Priorities = []int{5, 6}
	sld, err := tsnsched.GenerateStreams(net, gc, cfg)
	require.NoError(t, err)
	require.Len(t, sld.Streams, gc.Streams)

	hosts := net.EndSystems()
	for idx, s := range sld.Streams {
		assert.Equal(t, idx+1, s.ID)
		assert.Contains(t, hosts, s.Src)
		assert.Contains(t, hosts, s.Dst)
		assert.NotEqual(t, s.Src, s.Dst)
		assert.Contains(t, gc.Periods, s.Period)
		assert.InDelta(t, s.Period, s.Bound, 1e-9)
		assert.GreaterOrEqual(t, s.FrameSize, float64(gc.MinFrame*8))
		assert.LessOrEqual(t, s.FrameSize, float64(gc.MaxFrame*8))
		assert.Contains(t, []int{5, 6}, s.Priority)
	}

	gc.Periods = []float64{15}
	_, err = tsnsched.GenerateStreams(net, gc, cfg)
	assert.ErrorIs(t, err, tsnsched.ErrBadPeriod)

	_, err = tsnsched.GenerateStreams(pairNetwork(t, 1000), tsnsched.GenConfig{Name: "x", Streams: 1}, cfg)
	assert.ErrorIs(t, err, tsnsched.ErrBadStream)

	lonely := tsnsched.NewNetwork("lonely")
	require.NoError(t, lonely.AddNode("A", tsnsched.EndSystem))
	_, err = tsnsched.GenerateStreams(lonely, gc, cfg)
	assert.ErrorIs(t, err, tsnsched.ErrBadStream)
}
