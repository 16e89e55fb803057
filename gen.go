package tsnsched

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// GenConfig parameterizes a random stream set
type GenConfig struct {
	Name    string `json:"name" yaml:"name"`
	Streams int    `json:"streams" yaml:"streams"`

	// Periods in microseconds to draw from, each a multiple of the cycle
	Periods []float64 `json:"periods" yaml:"periods"`

	// frame sizes are drawn uniformly from [MinFrame, MaxFrame] bytes
	MinFrame int `json:"minframe" yaml:"minframe"`
	MaxFrame int `json:"maxframe" yaml:"maxframe"`

	// the bound of a stream is its period times a factor drawn uniformly
	// from [MinSlack, MaxSlack]
	MinSlack float64 `json:"minslack" yaml:"minslack"`
	MaxSlack float64 `json:"maxslack" yaml:"maxslack"`

	// Priorities to draw from; empty gives every stream priority 0
	Priorities []int `json:"priorities" yaml:"priorities"`
}

// DefaultGenConfig draws small isochronous flow sets with deadline equal
// to period
func DefaultGenConfig(cfg CycleConfig) GenConfig {
	c := cfg.CycleLength
	return GenConfig{
		Name:     "random",
		Streams:  10,
		Periods:  []float64{5 * c, 10 * c, 20 * c},
		MinFrame: 64,
		MaxFrame: 300,
		MinSlack: 1,
		MaxSlack: 1,
	}
}

// GenerateStreams draws a random stream set between the end systems of a
// network. Random numbers come from an rngstream named after the set, so
// the same sequence of calls in a fresh process yields the same sets.
func GenerateStreams(net *Network, gc GenConfig, cfg CycleConfig) (*StreamListDesc, error) {
	hosts := net.EndSystems()
	if len(hosts) < 2 {
		return nil, fmt.Errorf("%w: %d end systems, need at least 2", ErrBadStream, len(hosts))
	}
	if len(gc.Periods) == 0 || gc.Streams < 0 {
		return nil, fmt.Errorf("%w: no periods to draw from", ErrBadStream)
	}
	for _, p := range gc.Periods {
		probe := Stream{Name: "period", Period: p}
		if _, err := probe.periodCycles(cfg.CycleLength); err != nil {
			return nil, err
		}
	}
	if gc.MinFrame < 1 || gc.MaxFrame < gc.MinFrame {
		return nil, fmt.Errorf("%w: frame range [%d,%d]", ErrBadStream, gc.MinFrame, gc.MaxFrame)
	}
	if !(gc.MinSlack > 0) || gc.MaxSlack < gc.MinSlack {
		return nil, fmt.Errorf("%w: slack range [%g,%g]", ErrBadStream, gc.MinSlack, gc.MaxSlack)
	}

	rng := rngstream.New(gc.Name)
	pick := func(n int) int {
		return min(int(rng.RandU01()*float64(n)), n-1)
	}

	sld := CreateStreamListDesc(gc.Name)
	for idx := 0; idx < gc.Streams; idx++ {
		src := pick(len(hosts))
		dst := pick(len(hosts) - 1)
		if dst >= src {
			dst++
		}
		period := gc.Periods[pick(len(gc.Periods))]
		size := gc.MinFrame + pick(gc.MaxFrame-gc.MinFrame+1)
		slack := gc.MinSlack + rng.RandU01()*(gc.MaxSlack-gc.MinSlack)
		bound := math.Max(cfg.CycleLength, math.Floor(period*slack/cfg.CycleLength)*cfg.CycleLength)
		prio := 0
		if len(gc.Priorities) > 0 {
			prio = gc.Priorities[pick(len(gc.Priorities))]
		}
		sld.AddStream(Stream{
			ID:        idx + 1,
			Name:      fmt.Sprintf("%s_%d", gc.Name, idx),
			Src:       hosts[src],
			Dst:       hosts[dst],
			Period:    period,
			FrameSize: float64(size * 8),
			Bound:     bound,
			Priority:  prio,
		})
	}
	return sld, nil
}
