package tsnsched

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors a run reports to
type Metrics struct {
	Runs     *prometheus.CounterVec
	Stages   *prometheus.HistogramVec
	Program  *prometheus.GaugeVec
	Rejected prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsnsched",
			Name:      "runs_total",
			Help:      "Scheduling runs by discipline and outcome.",
		}, []string{"discipline", "outcome"}),
		Stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tsnsched",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each stage of a run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		Program: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tsnsched",
			Name:      "program_size",
			Help:      "Variables and constraints of the last program built.",
		}, []string{"kind"}),
		Rejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tsnsched",
			Name:      "rejected_streams",
			Help:      "Statically infeasible streams of the last run.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Runs, m.Stages, m.Program, m.Rejected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.Stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeModel(model *Model) {
	if m == nil || model == nil {
		return
	}
	m.Program.WithLabelValues("vars").Set(float64(model.Program.NumVars()))
	m.Program.WithLabelValues("integers").Set(float64(model.Program.NumIntegers()))
	m.Program.WithLabelValues("constraints").Set(float64(model.Program.NumConstraints()))
	m.Rejected.Set(float64(len(model.Rejected)))
}

func (m *Metrics) countRun(d Discipline, outcome string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(d.String(), outcome).Inc()
}
