package tsnsched_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iti/tsnsched"
)

func TestReplayAgreesWithSchedule(t *testing.T) {
	cfg := testConfig()
	net := lineNetwork(t, 1, 1000, 1)
	streams := []*tsnsched.Stream{
		stream(1, "every", "A", "B", 10, 300, 40),
		stream(2, "other", "A", "B", 20, 300, 40),
	}
	tm := tsnsched.CreateTraceManager("replay", true)
	out, err := tsnsched.Run(context.Background(), tsnsched.Problem{Network: net, Streams: streams,
		Discipline: tsnsched.CSQF, Config: cfg}, tsnsched.WithTrace(tm))
	require.NoError(t, err)
	require.NotNil(t, out.Schedule)
	require.NotNil(t, out.Replay)

	rr := out.Replay
	assert.Equal(t, 3, rr.Frames)
	// release, two hops and arrival per frame
	assert.Equal(t, 12, rr.Events)
	assert.Equal(t, out.Schedule.Usage, rr.Usage)
	for _, ss := range out.Schedule.Streams {
		assert.InDelta(t, ss.Latency, rr.Latency[ss.Stream], 1e-3)
	}

	require.Len(t, tm.NameByID, 2)
	assert.Equal(t, tsnsched.NameType{Name: "every", Type: "stream"}, tm.NameByID[0])
	// two frames of three records each
	assert.Len(t, tm.Traces[0], 6)
	assert.Len(t, tm.Traces[1], 3)
	assert.Equal(t, "hop", tm.Traces[0][0].TraceType)
	assert.Contains(t, tm.Traces[0][0].TraceStr, "op: transmit")

	file := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, tm.WriteToFile(file))
	assert.NoError(t, tsnsched.CheckReadableFiles([]string{file}))
}

func TestReplayCatchesWrongUsage(t *testing.T) {
	cfg := testConfig()
	net := pairNetwork(t, 1000)
	streams := []*tsnsched.Stream{stream(1, "s1", "A", "B", 10, 500, 10)}
	out, err := tsnsched.Run(context.Background(), tsnsched.Problem{Network: net, Streams: streams,
		Discipline: tsnsched.CSQF, Config: cfg})
	require.NoError(t, err)
	require.NotNil(t, out.Schedule)

	shaper, err := tsnsched.NewShaper(tsnsched.CSQF, cfg, streams)
	require.NoError(t, err)
	rr, err := tsnsched.Replay(net, shaper, streams, out.Schedule, nil)
	require.NoError(t, err)
	require.NoError(t, rr.Compare(out.Schedule))

	claimed := cloneSchedule(out.Schedule)
	claimed.Usage[0].Load = 100
	assert.ErrorIs(t, rr.Compare(claimed), tsnsched.ErrExtractionInconsistency)

	claimed = cloneSchedule(out.Schedule)
	claimed.Streams[0].Latency = 20
	assert.ErrorIs(t, rr.Compare(claimed), tsnsched.ErrExtractionInconsistency)

	_, err = tsnsched.Replay(net, shaper, nil, out.Schedule, nil)
	assert.Error(t, err)
}

func TestTraceManager(t *testing.T) {
	tm := tsnsched.CreateTraceManager("names", true)
	require.NoError(t, tm.AddName(1, "s1", "stream"))
	assert.ErrorIs(t, tm.AddName(1, "s2", "stream"), tsnsched.ErrDuplicateName)

	var off *tsnsched.TraceManager
	assert.False(t, off.Active())
	assert.NoError(t, off.AddName(1, "s1", "stream"))
	assert.NoError(t, tsnsched.CreateTraceManager("off", false).WriteToFile(filepath.Join(t.TempDir(), "x.yaml")))

	ht := &tsnsched.HopTrace{Stream: "s1", Link: "l1", Op: "transmit"}
	str, err := ht.Serialize()
	require.NoError(t, err)
	assert.Contains(t, str, "link: l1")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := tsnsched.NewMetrics(reg)
	require.NoError(t, err)
	_, err = tsnsched.NewMetrics(reg)
	assert.Error(t, err, "collectors registered twice")

	ctx := context.Background()
	ok := tsnsched.Problem{
		Network:    pairNetwork(t, 1000),
		Streams:    []*tsnsched.Stream{stream(1, "s1", "A", "B", 10, 500, 10)},
		Discipline: tsnsched.CSQF,
		Config:     testConfig(),
	}
	_, err = tsnsched.Run(ctx, ok, tsnsched.WithMetrics(m))
	require.NoError(t, err)

	full := ok
	full.Streams = []*tsnsched.Stream{
		stream(1, "s1", "A", "B", 10, 600, 10),
		stream(2, "s2", "A", "B", 10, 600, 10),
		stream(3, "tight", "A", "B", 10, 100, 5),
	}
	_, err = tsnsched.Run(ctx, full, tsnsched.WithMetrics(m))
	require.NoError(t, err)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("csqf", "scheduled")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("csqf", "infeasible")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Rejected), 1e-9)
	assert.InDelta(t, 4.0, testutil.ToFloat64(m.Program.WithLabelValues("vars")), 1e-9)
	// build, solve and extract
	assert.Equal(t, 3, testutil.CollectAndCount(m.Stages, "tsnsched_stage_duration_seconds"))
}
