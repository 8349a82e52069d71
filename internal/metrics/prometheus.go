package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus records outcomes as a counter and a latency histogram.
type Prometheus struct {
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPrometheus registers the collectors on reg under namespace.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	p := &Prometheus{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Pipeline outcomes by stage and response code.",
		}, []string{"stage", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	for _, c := range []prometheus.Collector{p.outcomes, p.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) Observe(stage, outcome string, d time.Duration) {
	p.outcomes.WithLabelValues(stage, outcome).Inc()
	p.latency.WithLabelValues(stage).Observe(d.Seconds())
}
