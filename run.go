package tsnsched

import (
	"context"
	"errors"
	"time"

	"github.com/iti/tsnsched/milp"
)

// Outcome is what a run produced. Exactly one of Schedule and Report is
// set when Run returns without error.
type Outcome struct {
	RunID    string
	Model    *Model
	Result   *milp.Result
	Schedule *Schedule
	Report   *InfeasibleReport
	Replay   *ReplayResult
}

// Rejected lists the streams left out as statically infeasible
func (o *Outcome) Rejected() []StaticInfeasibility {
	if o == nil || o.Model == nil {
		return nil
	}
	return o.Model.Rejected
}

// Run builds the program of a problem, solves it and decodes the result.
// Build and extraction failures are returned as errors; infeasibility,
// unboundedness and timeouts come back as an Outcome with a Report.
func Run(ctx context.Context, prob Problem, opts ...Option) (*Outcome, error) {
	st := newSettings(opts)
	st.log = st.log.WithValues("run", st.runID)
	out := &Outcome{RunID: st.runID}

	start := time.Now()
	m, err := build(ctx, prob, st)
	st.metrics.observeStage("build", start)
	if err != nil {
		st.metrics.countRun(prob.Discipline, "build-error")
		return out, err
	}
	out.Model = m
	st.metrics.observeModel(m)

	start = time.Now()
	var res *milp.Result
	var serr error
	if len(m.streams) == 0 {
		// every stream was rejected, there is nothing to decide
		res = &milp.Result{Status: milp.Optimal, Values: make([]float64, m.Program.NumVars())}
	} else {
		res, serr = solve(ctx, m.Program, st)
	}
	st.metrics.observeStage("solve", start)
	out.Result = res
	st.log.Info("solver returned", "status", res.Status.String(), "objective", res.Objective,
		"elapsed", time.Since(start).String())

	start = time.Now()
	sched, report, err := extract(m, res, serr, st)
	st.metrics.observeStage("extract", start)
	if err != nil {
		st.metrics.countRun(prob.Discipline, "extraction-error")
		return out, err
	}

	if report != nil {
		if report.Kind == ReportInfeasible && st.diagnose {
			start = time.Now()
			report.Families = diagnose(ctx, m, st)
			st.metrics.observeStage("diagnose", start)
		}
		out.Report = report
		st.log.Info("no schedule", "report", report.String(), "rejected", len(m.Rejected))
		st.metrics.countRun(prob.Discipline, report.Kind.String())
		return out, nil
	}

	if st.replay {
		start = time.Now()
		rr, err := Replay(m.Network, m.Shaper, m.Scheduled(), sched, st.trace)
		st.metrics.observeStage("replay", start)
		if err == nil {
			err = rr.Compare(sched)
		}
		if err != nil {
			st.log.Error(err, "replay disagrees with the schedule")
			st.metrics.countRun(prob.Discipline, "extraction-error")
			return out, err
		}
		out.Replay = rr
	}

	out.Schedule = sched
	st.log.Info("schedule found", "streams", len(sched.Streams), "rejected", len(sched.Rejected),
		"optimal", sched.Optimal, "maxUtilization", sched.MaxUtilization())
	st.metrics.countRun(prob.Discipline, "scheduled")
	return out, nil
}

// solve calls the solver under the configured timeout and makes sure a
// result is always returned
func solve(ctx context.Context, p *milp.Program, st *settings) (*milp.Result, error) {
	if st.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.timeout)
		defer cancel()
	}
	res, err := st.solver.Solve(ctx, p)
	if res == nil {
		if err == nil {
			err = errors.New("no result")
		}
		if !errors.Is(err, milp.ErrTimeout) && !errors.Is(err, milp.ErrSolver) {
			err = errors.Join(milp.ErrSolver, err)
		}
		res = &milp.Result{Status: milp.Error}
	}
	return res, err
}
