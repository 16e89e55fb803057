package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/iti/tsnsched"
)

// exit codes
const (
	exitError      = 1
	exitNoSchedule = 2
)

// errNoSchedule is returned by commands that ran fine but found no
// schedule
var errNoSchedule = errors.New("no schedule")

var (
	verbosity int
	logger    logr.Logger
)

// network and shaper flags shared by every command
var inputs struct {
	topo         string
	streams      string
	shaper       string
	csqf         bool
	mcqf         bool
	switchConfig string
	cycleLength  float64
	linkSpeed    float64
	queues       int
}

var rootCmd = &cobra.Command{
	Use:   "tsnsched",
	Short: "Routing and queue assignment for CSQF and Multi-CQF networks",
	Long: `tsnsched builds a mixed-integer program that routes every stream of a
time-sensitive network and assigns it a cyclic queue on every hop, solves it
and writes the schedule.

Inputs are either a case directory holding 1_topo.txt and 1_flows.txt, or
yaml/json descriptions given with --topo and --streams.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		stdr.SetVerbosity(verbosity)
		logger = stdr.New(log.New(os.Stderr, "", log.LstdFlags))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.CountVarP(&verbosity, "verbose", "v", "increase verbosity; repeat for solver details")
}

// addInputFlags registers the network and shaper flags on a command
func addInputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&inputs.topo, "topo", "", "topology description (yaml or json)")
	f.StringVar(&inputs.streams, "streams", "", "stream list description (yaml or json)")
	f.StringVar(&inputs.shaper, "shaper", "", "shaper description (yaml or json), overrides the cycle flags")
	f.BoolVar(&inputs.csqf, "csqf", false, "schedule CSQF traffic")
	f.BoolVar(&inputs.mcqf, "mcqf", false, "schedule Multi-CQF traffic")
	f.StringVarP(&inputs.switchConfig, "switch-config", "s", "", "Multi-CQF switch configuration file")
	f.Float64Var(&inputs.cycleLength, "cycle-length", tsnsched.DefaultCycleLength, "base cycle length in microseconds")
	f.Float64Var(&inputs.linkSpeed, "link-speed", tsnsched.DefaultLinkSpeed, "link speed in Mbps")
	f.IntVar(&inputs.queues, "queues", tsnsched.DefaultQueues, "CSQF queues per port")
	cmd.MarkFlagsMutuallyExclusive("csqf", "mcqf")
	cmd.MarkFlagsMutuallyExclusive("csqf", "switch-config")
}

// loadInputs reads the network, the streams and the shaper selection.
// A positional argument names a case directory in the text format.
func loadInputs(args []string) (tsnsched.Problem, error) {
	var prob tsnsched.Problem

	prob.Discipline = tsnsched.CSQF
	prob.Config = tsnsched.DefaultCycleConfig()
	if inputs.shaper != "" {
		sd, err := tsnsched.ReadShaperDesc(inputs.shaper, tsnsched.IsYAML(inputs.shaper), nil)
		if err != nil {
			return prob, err
		}
		prob.Discipline, prob.Config = sd.Discipline, sd.Config
	} else {
		prob.Config.CycleLength = inputs.cycleLength
		prob.Config.LinkSpeed = inputs.linkSpeed
		prob.Config.Queues = inputs.queues
	}
	switch {
	case inputs.mcqf:
		prob.Discipline = tsnsched.MultiCQF
	case inputs.csqf:
		prob.Discipline = tsnsched.CSQF
	}
	if inputs.switchConfig != "" {
		if prob.Discipline != tsnsched.MultiCQF {
			return prob, fmt.Errorf("--switch-config is only valid for Multi-CQF traffic")
		}
		instances, err := tsnsched.ReadLegacySwitchConfig(inputs.switchConfig, nil)
		if err != nil {
			return prob, err
		}
		prob.Config.Instances = instances
	}

	var td *tsnsched.TopoDesc
	var sld *tsnsched.StreamListDesc
	var err error
	switch {
	case len(args) == 1:
		td, sld, err = tsnsched.ReadLegacyCase(args[0])
	case inputs.topo != "" && inputs.streams != "":
		if err = tsnsched.CheckReadableFiles([]string{inputs.topo, inputs.streams}); err != nil {
			return prob, err
		}
		td, err = tsnsched.ReadTopoDesc(inputs.topo, tsnsched.IsYAML(inputs.topo), nil)
		if err == nil {
			sld, err = tsnsched.ReadStreamListDesc(inputs.streams, tsnsched.IsYAML(inputs.streams), nil)
		}
	default:
		err = errors.New("give a case directory, or both --topo and --streams")
	}
	if err != nil {
		return prob, err
	}

	prob.Network, err = td.Transform(prob.Config)
	if err != nil {
		return prob, err
	}
	prob.Streams = sld.Transform()
	return prob, nil
}

// Execute runs the command line and exits with a code telling errors from
// runs that found no schedule
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return
	case errors.Is(err, errNoSchedule):
		stop()
		os.Exit(exitNoSchedule)
	default:
		fmt.Fprintln(os.Stderr, "tsnsched:", err)
		stop()
		os.Exit(exitError)
	}
}
