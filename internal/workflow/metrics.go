package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported by `wsideid serve`.
type Metrics struct {
	ItemActions *prometheus.CounterVec
	Jobs        *prometheus.CounterVec
	OCRDuration prometheus.Histogram
}

// NewMetrics creates and registers the workflow collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ItemActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsideid_item_actions_total",
				Help: "Item actions by action and result.",
			},
			[]string{"action", "result"},
		),
		Jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsideid_jobs_total",
				Help: "Finished jobs by type and terminal status.",
			},
			[]string{"type", "status"},
		),
		OCRDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wsideid_ocr_duration_seconds",
			Help:    "Time spent recognizing label text for one item.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.ItemActions, m.Jobs, m.OCRDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeAction(action Action, result string) {
	if m == nil {
		return
	}
	m.ItemActions.WithLabelValues(string(action), result).Inc()
}
