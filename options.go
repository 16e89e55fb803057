package tsnsched

import (
	"runtime"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/iti/tsnsched/milp"
	"github.com/iti/tsnsched/milp/bnb"
)

// Option configures Build, Extract and Run
type Option func(*settings)

type settings struct {
	log       logr.Logger
	workers   int
	objective Objective
	solver    milp.Solver
	timeout   time.Duration
	metrics   *Metrics
	trace     *TraceManager
	replay    bool
	diagnose  bool
	runID     string
}

func newSettings(opts []Option) *settings {
	st := &settings{log: logr.Discard()}
	for _, opt := range opts {
		opt(st)
	}
	if st.workers < 1 {
		st.workers = runtime.NumCPU()
	}
	if st.solver == nil {
		st.solver = bnb.New(bnb.WithLogger(st.log.WithName("bnb")))
	}
	if st.runID == "" {
		st.runID = uuid.NewString()
	}
	return st
}

// WithLogger sets the logger. Build and solver progress is logged at V(1).
func WithLogger(log logr.Logger) Option {
	return func(st *settings) {
		st.log = log
	}
}

// WithWorkers bounds the number of streams whose fragments are built
// concurrently. Zero means one per CPU.
func WithWorkers(n int) Option {
	return func(st *settings) {
		st.workers = n
	}
}

// WithObjective selects the objective; the default is Feasibility
func WithObjective(obj Objective) Option {
	return func(st *settings) {
		st.objective = obj
	}
}

// WithSolver replaces the default branch-and-bound backend
func WithSolver(s milp.Solver) Option {
	return func(st *settings) {
		st.solver = s
	}
}

// WithTimeout bounds the time spent in the solver. Zero means no bound
// beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(st *settings) {
		st.timeout = d
	}
}

// WithMetrics records every run on the given collectors
func WithMetrics(m *Metrics) Option {
	return func(st *settings) {
		st.metrics = m
	}
}

// WithTrace records the replay of a schedule on a trace manager.
// It implies WithReplay.
func WithTrace(tm *TraceManager) Option {
	return func(st *settings) {
		st.trace = tm
		st.replay = true
	}
}

// WithReplay replays every schedule through the event simulator and
// rejects it when the replay disagrees with the validator
func WithReplay() Option {
	return func(st *settings) {
		st.replay = true
	}
}

// WithDiagnosis re-solves infeasible programs with one constraint family
// relaxed at a time to name the families responsible
func WithDiagnosis() Option {
	return func(st *settings) {
		st.diagnose = true
	}
}

// WithRunID fixes the run id instead of drawing a random one
func WithRunID(id string) Option {
	return func(st *settings) {
		st.runID = id
	}
}
