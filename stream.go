package tsnsched

import (
	"math"

	"golang.org/x/exp/slices"
)

// A Stream is a periodic flow of frames from Src to Dst. Period and Bound
// are in microseconds, FrameSize in bits. Priority selects the Multi-CQF
// instances the stream may use; 0 accepts any. When Path is not empty it
// fixes the route as an ordered list of link names.
type Stream struct {
	ID        int      `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Src       string   `json:"src" yaml:"src"`
	Dst       string   `json:"dst" yaml:"dst"`
	Period    float64  `json:"period" yaml:"period"`
	FrameSize float64  `json:"framesize" yaml:"framesize"`
	Bound     float64  `json:"bound" yaml:"bound"`
	Priority  int      `json:"priority" yaml:"priority"`
	Path      []string `json:"path,omitempty" yaml:"path,omitempty"`
}

// periodCycles returns the period as a number of base cycles, or an error
// when it is not a positive integer multiple of the cycle length
func (s *Stream) periodCycles(cycle float64) (int, error) {
	ratio := s.Period / cycle
	rounded := math.Round(ratio)
	if !(s.Period > 0) || rounded < 1 || math.Abs(ratio-rounded) > 1e-9*math.Max(1, ratio) {
		return 0, buildErr("stream", s.Name, ErrBadPeriod, "period %g, cycle %g", s.Period, cycle)
	}
	return int(rounded), nil
}

// validateStreams checks every stream against the network: endpoints must
// exist and differ, sizes and bounds must be positive, names unique, and
// fixed paths must be contiguous walks from source to destination.
func validateStreams(net *Network, streams []*Stream) error {
	seen := make(map[string]bool, len(streams))
	for _, s := range streams {
		if s == nil {
			return buildErr("stream", "", ErrBadStream, "nil stream")
		}
		if s.Name == "" {
			return buildErr("stream", s.Name, ErrBadStream, "stream %d has no name", s.ID)
		}
		if seen[s.Name] {
			return buildErr("stream", s.Name, ErrDuplicateName, "")
		}
		seen[s.Name] = true

		if _, present := net.Node(s.Src); !present {
			return buildErr("stream", s.Name, ErrUnknownNode, "source %q", s.Src)
		}
		if _, present := net.Node(s.Dst); !present {
			return buildErr("stream", s.Name, ErrUnknownNode, "destination %q", s.Dst)
		}
		if s.Src == s.Dst {
			return buildErr("stream", s.Name, ErrBadStream, "source and destination are both %s", s.Src)
		}
		if !(s.FrameSize > 0) {
			return buildErr("stream", s.Name, ErrBadStream, "frame size %g must be positive", s.FrameSize)
		}
		if !(s.Bound > 0) {
			return buildErr("stream", s.Name, ErrBadStream, "latency bound %g must be positive", s.Bound)
		}
		if s.Priority < 0 {
			return buildErr("stream", s.Name, ErrBadStream, "priority %d must not be negative", s.Priority)
		}
		if err := checkFixedPath(net, s); err != nil {
			return err
		}
	}
	return nil
}

func checkFixedPath(net *Network, s *Stream) error {
	if len(s.Path) == 0 {
		return nil
	}
	here := s.Src
	visited := []string{here}
	for _, name := range s.Path {
		l, present := net.Link(name)
		if !present {
			return buildErr("stream", s.Name, ErrUnknownLink, "fixed path link %q", name)
		}
		if l.From != here {
			return buildErr("stream", s.Name, ErrBadStream, "fixed path link %s does not leave %s", name, here)
		}
		if slices.Contains(visited, l.To) {
			return buildErr("stream", s.Name, ErrBadStream, "fixed path revisits %s", l.To)
		}
		here = l.To
		visited = append(visited, here)
	}
	if here != s.Dst {
		return buildErr("stream", s.Name, ErrBadStream, "fixed path ends at %s, not %s", here, s.Dst)
	}
	return nil
}

// Hyperperiod is the least common multiple of the stream periods, in base
// cycles, and of multiple
func Hyperperiod(streams []*Stream, cycle float64, multiple int) (int, error) {
	h := max(1, multiple)
	for _, s := range streams {
		p, err := s.periodCycles(cycle)
		if err != nil {
			return 0, err
		}
		h = lcm(h, p)
		if h > math.MaxInt32 {
			return 0, buildErr("stream", s.Name, ErrHyperperiod, "hyperperiod overflows")
		}
	}
	return h, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}
