package tsnsched

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownNode          = errors.New("unknown node")
	ErrUnknownLink          = errors.New("unknown link")
	ErrDuplicateName        = errors.New("duplicated name")
	ErrBadPeriod            = errors.New("period is not a positive integer multiple of the cycle length")
	ErrBadConfig            = errors.New("invalid cycle configuration")
	ErrBadStream            = errors.New("invalid stream")
	ErrHyperperiod          = errors.New("hyperperiod exceeds the configured limit")
	ErrUnsupportedObjective = errors.New("unsupported objective")

	// ErrStaticInfeasible is wrapped by every StaticInfeasibility
	ErrStaticInfeasible = errors.New("stream is statically infeasible")

	// ErrExtractionInconsistency marks a solver assignment that does not
	// decode into a valid schedule
	ErrExtractionInconsistency = errors.New("solver assignment is inconsistent")
)

// BuildError reports input that could not be turned into a program.
// It always wraps one of the sentinel errors of this package.
type BuildError struct {
	Component string
	Name      string
	Err       error
}

func (e *BuildError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("build %s: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("build %s %q: %v", e.Component, e.Name, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func buildErr(component, name string, err error, format string, args ...any) error {
	if format != "" {
		err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
	return &BuildError{Component: component, Name: name, Err: err}
}

// StaticInfeasibility names a stream that cannot be scheduled whatever
// the other streams do, e.g. because no route meets its latency bound.
// LowerBound is zero when no route exists at all.
type StaticInfeasibility struct {
	Stream     string  `json:"stream" yaml:"stream"`
	Reason     string  `json:"reason" yaml:"reason"`
	LowerBound float64 `json:"lowerbound,omitempty" yaml:"lowerbound,omitempty"`
	Bound      float64 `json:"bound" yaml:"bound"`
}

func (si StaticInfeasibility) Error() string {
	return fmt.Sprintf("stream %q: %s", si.Stream, si.Reason)
}

func (si StaticInfeasibility) Unwrap() error {
	return ErrStaticInfeasible
}

// ExtractionError carries the stream and the offending part of the
// assignment when a solver result fails to decode or to re-validate
type ExtractionError struct {
	Stream     string
	Assignment []string
	Problems   []string
}

func (e *ExtractionError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrExtractionInconsistency.Error())
	if e.Stream != "" {
		sb.WriteString(fmt.Sprintf(" for stream %q", e.Stream))
	}
	if len(e.Problems) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(e.Problems, "; "))
	}
	return sb.String()
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtractionInconsistency
}
