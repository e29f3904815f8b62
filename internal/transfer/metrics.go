package transfer

import (
	"github.com/prometheus/client_golang/prometheus"

	"smartlauncher/internal/models"
)

// Metrics counts transfers; a nil *Metrics records nothing.
type Metrics struct {
	transfers *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	consumed  prometheus.Counter
	swept     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartlauncher",
			Name:      "transfers_total",
			Help:      "File transfers by strategy and outcome.",
		}, []string{"method", "outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartlauncher",
			Name:      "transfer_bytes_total",
			Help:      "Serialized payload bytes handed to the destination.",
		}, []string{"method"}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartlauncher",
			Name:      "sessions_consumed_total",
			Help:      "Storage sessions read by the destination.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartlauncher",
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the sweeper.",
		}),
	}
	reg.MustRegister(m.transfers, m.bytes, m.consumed, m.swept)
	return m
}

func (m *Metrics) observe(method models.TransferMethod, outcome string, bytes int64) {
	if m == nil {
		return
	}
	if method == "" {
		method = "none"
	}
	m.transfers.WithLabelValues(string(method), outcome).Inc()
	if outcome == "success" {
		m.bytes.WithLabelValues(string(method)).Add(float64(bytes))
	}
}

func (m *Metrics) observeConsumed() {
	if m == nil {
		return
	}
	m.consumed.Inc()
}

// ObserveSwept is meant to be installed as the store's sweep hook.
func (m *Metrics) ObserveSwept(n int) {
	if m == nil {
		return
	}
	m.swept.Add(float64(n))
}
