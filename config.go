package tsnsched

import (
	"fmt"
	"math"
	"strings"
)

// Discipline selects the shaper model
type Discipline int

const (
	CSQF Discipline = iota
	MultiCQF
)

var disciplineToStr = map[Discipline]string{CSQF: "csqf", MultiCQF: "mcqf"}

func (d Discipline) String() string {
	return disciplineToStr[d]
}

// ParseDiscipline accepts the names used on the command line and in
// description files
func ParseDiscipline(name string) (Discipline, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csqf":
		return CSQF, nil
	case "mcqf", "multicqf", "multi-cqf":
		return MultiCQF, nil
	}
	return CSQF, fmt.Errorf("%w: unknown discipline %q", ErrBadConfig, name)
}

// MarshalText lets a Discipline appear by name in yaml and json
func (d Discipline) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText is the inverse of MarshalText
func (d *Discipline) UnmarshalText(text []byte) error {
	parsed, err := ParseDiscipline(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// An Instance is one Multi-CQF queue set. Its cycle is CycleCoefficient
// base cycles long, starting at base cycles congruent to Phase, and it may
// use BandwidthFraction of every link. Priority 0 accepts streams of any
// priority.
type Instance struct {
	Priority          int     `json:"priority" yaml:"priority"`
	Queues            int     `json:"queues" yaml:"queues"`
	BandwidthFraction float64 `json:"bandwidthfraction" yaml:"bandwidthfraction"`
	CycleCoefficient  int     `json:"cyclecoefficient" yaml:"cyclecoefficient"`
	Phase             int     `json:"phase" yaml:"phase"`
}

const (
	DefaultCycleLength    = 10.0   // microseconds
	DefaultLinkSpeed      = 1000.0 // Mbps
	DefaultQueues         = 3
	DefaultMaxHyperperiod = 4096 // base cycles
	maxDerivedInstances   = 8
)

// CycleConfig holds the timing and queue parameters shared by every
// component. It is passed by value and never modified after validation.
type CycleConfig struct {
	// CycleLength is the base cycle in microseconds
	CycleLength float64 `json:"cyclelength" yaml:"cyclelength"`

	// LinkSpeed in Mbps gives the capacity of links that do not state one
	LinkSpeed float64 `json:"linkspeed" yaml:"linkspeed"`

	// Queues is the number of cyclic queues per CSQF port
	Queues int `json:"queues" yaml:"queues"`

	// Instances lists the Multi-CQF queue sets. When empty, InstanceCount
	// instances are derived (see ResolveInstances)
	Instances     []Instance `json:"instances" yaml:"instances"`
	InstanceCount int        `json:"instancecount" yaml:"instancecount"`

	// MaxHyperperiod caps the number of base cycles in the hyperperiod
	MaxHyperperiod int `json:"maxhyperperiod" yaml:"maxhyperperiod"`

	// DeviceQueues restricts the labels usable on links leaving a device:
	// CSQF queue numbers, or Multi-CQF instance indices, below the limit
	DeviceQueues map[string]int `json:"devicequeues,omitempty" yaml:"devicequeues,omitempty"`
}

// DefaultCycleConfig returns the parameters the command line uses when
// nothing else is given
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		CycleLength:    DefaultCycleLength,
		LinkSpeed:      DefaultLinkSpeed,
		Queues:         DefaultQueues,
		MaxHyperperiod: DefaultMaxHyperperiod,
	}
}

// LinkCapacity is the number of bits a link of the configured speed
// carries in one base cycle. Mbps times microseconds is bits.
func (cfg CycleConfig) LinkCapacity() float64 {
	return cfg.LinkSpeed * cfg.CycleLength
}

// Validate checks the configuration for the given discipline
func (cfg CycleConfig) Validate(d Discipline) error {
	bad := func(format string, args ...any) error {
		return buildErr("config", d.String(), ErrBadConfig, format, args...)
	}

	if !(cfg.CycleLength > 0) {
		return bad("cycle length %g must be positive", cfg.CycleLength)
	}
	if cfg.LinkSpeed < 0 {
		return bad("link speed %g must not be negative", cfg.LinkSpeed)
	}
	if cfg.MaxHyperperiod < 0 {
		return bad("hyperperiod limit %d must not be negative", cfg.MaxHyperperiod)
	}
	for dev, q := range cfg.DeviceQueues {
		if q < 1 {
			return bad("device %s queue limit %d must be at least 1", dev, q)
		}
	}

	switch d {
	case CSQF:
		if cfg.Queues < 1 {
			return bad("CSQF needs at least one queue, have %d", cfg.Queues)
		}
	case MultiCQF:
		if cfg.InstanceCount < 0 {
			return bad("instance count %d must not be negative", cfg.InstanceCount)
		}
		total := 0.0
		for idx, inst := range cfg.Instances {
			if inst.Queues < 1 {
				return bad("instance %d needs at least one queue", idx)
			}
			if !(inst.BandwidthFraction > 0) || inst.BandwidthFraction > 1 {
				return bad("instance %d bandwidth fraction %g outside (0,1]", idx, inst.BandwidthFraction)
			}
			if inst.CycleCoefficient < 1 {
				return bad("instance %d cycle coefficient %d must be at least 1", idx, inst.CycleCoefficient)
			}
			if inst.Phase < 0 || inst.Priority < 0 {
				return bad("instance %d phase and priority must not be negative", idx)
			}
			total += inst.BandwidthFraction
		}
		if total > 1+1e-9 {
			return bad("instance bandwidth fractions sum to %g > 1", total)
		}
	default:
		return bad("unknown discipline %d", int(d))
	}

	return nil
}

// ResolveInstances returns the configured Multi-CQF instances, or derives
// them when none are configured. Derived instance i has cycle coefficient
// i+1, two queues, phase 0 and an equal share of the bandwidth. Their
// number is InstanceCount when set, otherwise the largest latency bound in
// base cycles, clamped to [1, 8].
func (cfg CycleConfig) ResolveInstances(maxBound float64) []Instance {
	if len(cfg.Instances) > 0 {
		return append([]Instance(nil), cfg.Instances...)
	}

	k := cfg.InstanceCount
	if k == 0 {
		k = int(math.Ceil(maxBound/cfg.CycleLength - 1e-9))
		k = max(1, min(k, maxDerivedInstances))
	}

	rtn := make([]Instance, k)
	for idx := range rtn {
		rtn[idx] = Instance{Queues: 2, BandwidthFraction: 1 / float64(k), CycleCoefficient: idx + 1}
	}
	return rtn
}

func (cfg CycleConfig) maxHyperperiod() int {
	if cfg.MaxHyperperiod == 0 {
		return DefaultMaxHyperperiod
	}
	return cfg.MaxHyperperiod
}

// deviceLimit returns the label limit of a device, or def when none is set
func (cfg CycleConfig) deviceLimit(dev string, def int) int {
	if q, present := cfg.DeviceQueues[dev]; present && q < def {
		return q
	}
	return def
}
