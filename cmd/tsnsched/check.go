package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iti/tsnsched"
)

var checkFlags struct {
	schedule string
	replay   bool
}

var checkCmd = &cobra.Command{
	Use:   "check [case-dir] --schedule file",
	Short: "Validate a stored schedule against a network and its streams",
	Long: `check reads a schedule written by solve --write-solution (yaml or json) and
verifies routes, labels, latencies and per-cycle capacities against the
network, the streams and the cycle configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addInputFlags(checkCmd)

	f := checkCmd.Flags()
	f.StringVar(&checkFlags.schedule, "schedule", "", "schedule file (.yaml or .json)")
	f.BoolVar(&checkFlags.replay, "replay", false, "also replay the schedule in the event simulator")
	_ = checkCmd.MarkFlagRequired("schedule")
}

func runCheck(cmd *cobra.Command, args []string) error {
	prob, err := loadInputs(args)
	if err != nil {
		return err
	}
	sched, err := tsnsched.ReadSchedule(checkFlags.schedule, tsnsched.IsYAML(checkFlags.schedule), nil)
	if err != nil {
		return err
	}
	if sched.CycleLength != prob.Config.CycleLength {
		return fmt.Errorf("schedule uses a %g us cycle, configuration %g us", sched.CycleLength, prob.Config.CycleLength)
	}
	shaper, err := tsnsched.NewShaper(sched.Discipline, prob.Config, prob.Streams)
	if err != nil {
		return err
	}

	usage, err := tsnsched.Validate(prob.Network, shaper, prob.Config, prob.Streams, sched)
	if err != nil {
		var ee *tsnsched.ExtractionError
		if errors.As(err, &ee) {
			for _, p := range ee.Problems {
				fmt.Println(p)
			}
			return errNoSchedule
		}
		return err
	}
	sched.Usage = usage

	if checkFlags.replay {
		rr, err := tsnsched.Replay(prob.Network, shaper, prob.Streams, sched, nil)
		if err != nil {
			return err
		}
		if err := rr.Compare(sched); err != nil {
			fmt.Println(err)
			return errNoSchedule
		}
		logger.V(1).Info("replay agrees", "frames", rr.Frames, "events", rr.Events)
	}

	fmt.Printf("schedule valid: %d streams, max utilization %.3f\n", len(sched.Streams), sched.MaxUtilization())
	return nil
}
