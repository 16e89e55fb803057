package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/iti/tsnsched"
	"github.com/iti/tsnsched/milp/bnb"
)

var solveFlags struct {
	objective     string
	timeout       time.Duration
	nodeLimit     int
	workers       int
	writeProgram  string
	writeSolution string
	writeReport   string
	trace         string
	metrics       string
	diagnose      bool
	replay        bool
}

var solveCmd = &cobra.Command{
	Use:   "solve [case-dir]",
	Short: "Route and schedule the streams of a network",
	Long: `solve builds the program for the chosen shaper, solves it with the built-in
branch-and-bound solver and prints one line per scheduled stream.

The program can be written in LP format for offline benchmarking, and the
schedule as CSV (with a usage table alongside), yaml or json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSolve,
}

func init() {
	rootCmd.AddCommand(solveCmd)
	addInputFlags(solveCmd)

	f := solveCmd.Flags()
	f.StringVar(&solveFlags.objective, "objective", "feasibility",
		"feasibility, min-latency, min-max-utilization or min-instances")
	f.DurationVar(&solveFlags.timeout, "timeout", 0, "solver time limit, 0 for none")
	f.IntVar(&solveFlags.nodeLimit, "node-limit", bnb.DefaultNodeLimit, "branch-and-bound node limit")
	f.IntVar(&solveFlags.workers, "workers", 0, "concurrent stream builders, 0 for one per CPU")
	f.StringVar(&solveFlags.writeProgram, "write-program", "", "write the program in LP format to this file")
	f.StringVar(&solveFlags.writeSolution, "write-solution", "", "write the schedule to this file (.csv, .yaml or .json)")
	f.StringVar(&solveFlags.writeReport, "write-report", "", "write the report of a failed run to this file (.yaml or .json)")
	f.StringVar(&solveFlags.trace, "trace", "", "replay the schedule and write the trace to this file (.yaml or .json)")
	f.StringVar(&solveFlags.metrics, "metrics", "", "write run metrics in Prometheus text format to this file")
	f.BoolVar(&solveFlags.diagnose, "diagnose", false, "name the constraint families that make the program infeasible")
	f.BoolVar(&solveFlags.replay, "replay", false, "replay the schedule in the event simulator before accepting it")
}

func runSolve(cmd *cobra.Command, args []string) error {
	if err := tsnsched.CheckOutputFiles([]string{solveFlags.writeProgram, solveFlags.writeSolution,
		solveFlags.writeReport, solveFlags.trace, solveFlags.metrics}); err != nil {
		return err
	}
	prob, err := loadInputs(args)
	if err != nil {
		return err
	}
	obj, err := tsnsched.ParseObjective(solveFlags.objective)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := tsnsched.NewMetrics(reg)
	if err != nil {
		return err
	}

	opts := []tsnsched.Option{
		tsnsched.WithLogger(logger),
		tsnsched.WithObjective(obj),
		tsnsched.WithTimeout(solveFlags.timeout),
		tsnsched.WithWorkers(solveFlags.workers),
		tsnsched.WithMetrics(metrics),
		tsnsched.WithSolver(bnb.New(bnb.WithNodeLimit(solveFlags.nodeLimit),
			bnb.WithLogger(logger.WithName("bnb")))),
	}
	var tm *tsnsched.TraceManager
	if solveFlags.trace != "" {
		tm = tsnsched.CreateTraceManager(prob.Network.Name, true)
		opts = append(opts, tsnsched.WithTrace(tm))
	}
	if solveFlags.replay {
		opts = append(opts, tsnsched.WithReplay())
	}
	if solveFlags.diagnose {
		opts = append(opts, tsnsched.WithDiagnosis())
	}

	fmt.Printf("Model name: %s\nTraffic shaper: %s\nCycle length: %g\nLink speed: %g\n",
		prob.Network.Name, prob.Discipline, prob.Config.CycleLength, prob.Config.LinkSpeed)

	start := time.Now()
	out, err := tsnsched.Run(cmd.Context(), prob, opts...)
	if out != nil && out.Model != nil && solveFlags.writeProgram != "" {
		if werr := tsnsched.WriteProgram(solveFlags.writeProgram, out.Model.Program); werr != nil {
			return werr
		}
	}
	if solveFlags.metrics != "" {
		if werr := writeMetrics(solveFlags.metrics, reg); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}

	for _, r := range out.Rejected() {
		fmt.Printf("rejected %s: %s\n", r.Stream, r.Reason)
	}
	if out.Report != nil {
		fmt.Println("no schedule:", out.Report.String())
		if solveFlags.writeReport != "" {
			if err := out.Report.WriteToFile(solveFlags.writeReport); err != nil {
				return err
			}
		}
		fmt.Printf("Model build + solution time (seconds): %g\n", time.Since(start).Seconds())
		return errNoSchedule
	}

	sched := out.Schedule
	for idx := range sched.Streams {
		ss := &sched.Streams[idx]
		fmt.Printf("%s: latency %g/%g %s\n", ss.Stream, ss.Latency, ss.Bound, tsnsched.ShowPath(prob.Network, ss.Path()))
	}
	fmt.Printf("max utilization %.3f, objective %g, optimal %t\n", sched.MaxUtilization(), sched.Objective, sched.Optimal)
	fmt.Printf("Model build + solution time (seconds): %g\n", time.Since(start).Seconds())

	if solveFlags.writeSolution != "" {
		if err := tsnsched.WriteSolution(solveFlags.writeSolution, sched); err != nil {
			return err
		}
	}
	if tm != nil {
		if err := tm.WriteToFile(solveFlags.trace); err != nil {
			return err
		}
	}
	return nil
}

// writeMetrics dumps the gathered metrics in the Prometheus text format
func writeMetrics(filename string, reg *prometheus.Registry) error {
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
