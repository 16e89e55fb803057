package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iti/tsnsched"
)

var genFlags struct {
	topo       string
	out        string
	name       string
	count      int
	periods    []float64
	minFrame   int
	maxFrame   int
	minSlack   float64
	maxSlack   float64
	priorities []int
	cycle      float64
}

var genCmd = &cobra.Command{
	Use:   "gen [case-dir]",
	Short: "Draw a random stream set between the end systems of a network",
	Long: `gen draws streams with random end points, periods, frame sizes and
deadlines, and writes them as a stream list description for solve --streams.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGen,
}

func init() {
	rootCmd.AddCommand(genCmd)

	def := tsnsched.DefaultGenConfig(tsnsched.DefaultCycleConfig())
	f := genCmd.Flags()
	f.StringVar(&genFlags.topo, "topo", "", "topology description (yaml or json)")
	f.StringVarP(&genFlags.out, "out", "o", "streams.yaml", "output file (.yaml or .json)")
	f.StringVar(&genFlags.name, "name", def.Name, "name of the stream set")
	f.IntVarP(&genFlags.count, "count", "n", def.Streams, "number of streams")
	f.Float64SliceVar(&genFlags.periods, "periods", def.Periods, "periods to draw from, in microseconds")
	f.IntVar(&genFlags.minFrame, "min-frame", def.MinFrame, "smallest frame in bytes")
	f.IntVar(&genFlags.maxFrame, "max-frame", def.MaxFrame, "largest frame in bytes")
	f.Float64Var(&genFlags.minSlack, "min-slack", def.MinSlack, "smallest deadline to period ratio")
	f.Float64Var(&genFlags.maxSlack, "max-slack", def.MaxSlack, "largest deadline to period ratio")
	f.IntSliceVar(&genFlags.priorities, "priorities", nil, "priorities to draw from")
	f.Float64Var(&genFlags.cycle, "cycle-length", tsnsched.DefaultCycleLength, "base cycle length in microseconds")
}

func runGen(cmd *cobra.Command, args []string) error {
	if err := tsnsched.CheckOutputFiles([]string{genFlags.out}); err != nil {
		return err
	}
	cfg := tsnsched.DefaultCycleConfig()
	cfg.CycleLength = genFlags.cycle

	var td *tsnsched.TopoDesc
	var err error
	switch {
	case len(args) == 1:
		td, _, err = tsnsched.ReadLegacyCase(args[0])
	case genFlags.topo != "":
		td, err = tsnsched.ReadTopoDesc(genFlags.topo, tsnsched.IsYAML(genFlags.topo), nil)
	default:
		err = errors.New("give a case directory or --topo")
	}
	if err != nil {
		return err
	}
	net, err := td.Transform(cfg)
	if err != nil {
		return err
	}

	gc := tsnsched.GenConfig{
		Name:       genFlags.name,
		Streams:    genFlags.count,
		Periods:    genFlags.periods,
		MinFrame:   genFlags.minFrame,
		MaxFrame:   genFlags.maxFrame,
		MinSlack:   genFlags.minSlack,
		MaxSlack:   genFlags.maxSlack,
		Priorities: genFlags.priorities,
	}
	sld, err := tsnsched.GenerateStreams(net, gc, cfg)
	if err != nil {
		return err
	}
	if err := sld.WriteToFile(genFlags.out); err != nil {
		return err
	}
	logger.V(1).Info("stream set written", "file", genFlags.out, "streams", len(sld.Streams))
	fmt.Printf("%d streams written to %s\n", len(sld.Streams), genFlags.out)
	return nil
}
