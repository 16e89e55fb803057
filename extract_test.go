package tsnsched_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iti/tsnsched"
	"github.com/iti/tsnsched/milp"
)

func singleLinkModel(t *testing.T) *tsnsched.Model {
	prob := tsnsched.Problem{
		Network:    pairNetwork(t, 1000),
		Streams:    []*tsnsched.Stream{stream(1, "s1", "A", "B", 10, 500, 10)},
		Discipline: tsnsched.CSQF,
		Config:     testConfig(),
	}
	m, err := tsnsched.Build(context.Background(), prob)
	require.NoError(t, err)
	require.Equal(t, 2, m.Program.NumVars())
	return m
}

func TestExtractDecodesAssignment(t *testing.T) {
	m := singleLinkModel(t)
	res := &milp.Result{Status: milp.Feasible, Values: []float64{1, 1}}

	sched, report, err := tsnsched.Extract(m, res, nil, tsnsched.WithRunID("r1"))
	require.NoError(t, err)
	require.Nil(t, report)
	assert.Equal(t, "r1", sched.RunID)
	assert.False(t, sched.Optimal)
	require.Len(t, sched.Streams, 1)
	assert.Equal(t, []tsnsched.Hop{{Link: "l1", From: "A", To: "B", Label: tsnsched.Label{}}}, sched.Streams[0].Hops)
}

func TestExtractRejectsInconsistentAssignment(t *testing.T) {
	m := singleLinkModel(t)
	cases := map[string][]float64{
		"no route":          {0, 0},
		"label without use": {0, 1},
		"use without label": {1, 0},
	}
	for name, values := range cases {
		_, _, err := tsnsched.Extract(m, &milp.Result{Status: milp.Optimal, Values: values}, nil)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, tsnsched.ErrExtractionInconsistency, name)
		var ee *tsnsched.ExtractionError
		require.True(t, errors.As(err, &ee), name)
		assert.Equal(t, "s1", ee.Stream, name)
		assert.NotEmpty(t, ee.Problems, name)
	}

	_, _, err := tsnsched.Extract(m, &milp.Result{Status: milp.Optimal, Values: []float64{1}}, nil)
	assert.ErrorIs(t, err, tsnsched.ErrExtractionInconsistency)
}

func TestExtractReportsOffendingAssignment(t *testing.T) {
	prob := tsnsched.Problem{
		Network: pairNetwork(t, 1000),
		Streams: []*tsnsched.Stream{
			stream(1, "s1", "A", "B", 10, 600, 10),
			stream(2, "s2", "A", "B", 10, 600, 10),
		},
		Discipline: tsnsched.CSQF,
		Config:     testConfig(),
	}
	m, err := tsnsched.Build(context.Background(), prob)
	require.NoError(t, err)
	require.Equal(t, 4, m.Program.NumVars())

	// both frames decode but overload l1
	_, _, err = tsnsched.Extract(m, &milp.Result{Status: milp.Feasible, Values: []float64{1, 1, 1, 1}}, nil)
	var ee *tsnsched.ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "s1", ee.Stream)
	assert.Len(t, ee.Assignment, 2)
	assert.Contains(t, ee.Error(), "exceeds capacity")
}

func TestExtractReports(t *testing.T) {
	m := singleLinkModel(t)
	cases := []struct {
		status milp.Status
		err    error
		want   tsnsched.ReportKind
	}{
		{milp.Infeasible, nil, tsnsched.ReportInfeasible},
		{milp.Unbounded, nil, tsnsched.ReportUnbounded},
		{milp.Error, milp.ErrTimeout, tsnsched.ReportTimeout},
		{milp.Error, milp.ErrSolver, tsnsched.ReportSolverError},
	}
	for _, tc := range cases {
		sched, report, err := tsnsched.Extract(m, &milp.Result{Status: tc.status}, tc.err)
		require.NoError(t, err)
		assert.Nil(t, sched)
		require.NotNil(t, report)
		assert.Equal(t, tc.want, report.Kind)
		if tc.err != nil {
			assert.Contains(t, report.Diagnostics, tc.err.Error())
		}
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	cfg := testConfig()
	cfg.Queues = 2
	net := lineNetwork(t, 2, 1000, 0)
	streams := []*tsnsched.Stream{stream(1, "s1", "A", "B", 10, 600, 30)}
	out, err := tsnsched.Run(context.Background(), tsnsched.Problem{Network: net, Streams: streams,
		Discipline: tsnsched.CSQF, Config: cfg})
	require.NoError(t, err)
	require.NotNil(t, out.Schedule)

	shaper, err := tsnsched.NewShaper(tsnsched.CSQF, cfg, streams)
	require.NoError(t, err)
	usage, err := tsnsched.Validate(net, shaper, cfg, streams, out.Schedule)
	require.NoError(t, err)
	assert.Equal(t, out.Schedule.Usage, usage)

	tamper := map[string]func(s *tsnsched.Schedule){
		"latency": func(s *tsnsched.Schedule) { s.Streams[0].Latency = 20 },
		"queue":   func(s *tsnsched.Schedule) { s.Streams[0].Hops[1].Label.Queue = 0 },
		"offset": func(s *tsnsched.Schedule) {
			s.Streams[0].Hops[2].Label = tsnsched.Label{Offset: 3, Queue: 1}
		},
		"start": func(s *tsnsched.Schedule) {
			for idx := range s.Streams[0].Hops {
				s.Streams[0].Hops[idx].Label = tsnsched.Label{Offset: idx + 2, Queue: idx % 2}
			}
			s.Streams[0].Latency = 50
		},
		"route":  func(s *tsnsched.Schedule) { s.Streams[0].Hops = s.Streams[0].Hops[:2] },
		"stream": func(s *tsnsched.Schedule) { s.Streams[0].Stream = "ghost" },
		"missing": func(s *tsnsched.Schedule) { s.Streams = nil },
		"rejected": func(s *tsnsched.Schedule) {
			s.Rejected = []tsnsched.StaticInfeasibility{{Stream: "s1", Reason: "dropped"}}
		},
		"overload": func(s *tsnsched.Schedule) {
			twin := s.Streams[0]
			s.Streams = append(s.Streams, twin)
		},
	}
	for name, change := range tamper {
		sched := cloneSchedule(out.Schedule)
		change(sched)
		_, err := tsnsched.Validate(net, shaper, cfg, streams, sched)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, tsnsched.ErrExtractionInconsistency, name)
	}

	// a stream left out on purpose is fine
	dropped := cloneSchedule(out.Schedule)
	dropped.Streams = nil
	dropped.Rejected = []tsnsched.StaticInfeasibility{{Stream: "s1", Reason: "dropped"}}
	_, err = tsnsched.Validate(net, shaper, cfg, streams, dropped)
	assert.NoError(t, err)
}

func TestValidateDeviceLimit(t *testing.T) {
	cfg := testConfig()
	net := lineNetwork(t, 1, 1000, 0)
	streams := []*tsnsched.Stream{stream(1, "s1", "A", "B", 10, 200, 40)}
	out, err := tsnsched.Run(context.Background(), tsnsched.Problem{Network: net, Streams: streams,
		Discipline: tsnsched.CSQF, Config: cfg}, tsnsched.WithObjective(tsnsched.MinLatency))
	require.NoError(t, err)
	require.NotNil(t, out.Schedule)
	require.Equal(t, 1, out.Schedule.Streams[0].Hops[1].Label.Queue)

	cfg.DeviceQueues = map[string]int{"S1": 1}
	shaper, err := tsnsched.NewShaper(tsnsched.CSQF, cfg, streams)
	require.NoError(t, err)
	_, err = tsnsched.Validate(net, shaper, cfg, streams, out.Schedule)
	require.Error(t, err)
	assert.ErrorIs(t, err, tsnsched.ErrExtractionInconsistency)
	assert.Contains(t, err.Error(), "queue limit of S1")
}
