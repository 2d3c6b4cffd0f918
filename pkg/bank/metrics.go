package bank

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "playnet"

// Metrics counts transaction outcomes of one bank. Each bank registers into
// its own registry so several banks can live in one process.
type Metrics struct {
	registry  *prometheus.Registry
	txErrors  *prometheus.CounterVec
	processed prometheus.Counter
	simulated prometheus.Counter
	slot      prometheus.Gauge
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		txErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transaction_errors_total",
			Help:      "Failed transactions by reason.",
		}, []string{"reason"}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transactions_processed_total",
			Help:      "Transactions committed to the bank.",
		}),
		simulated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transactions_simulated_total",
			Help:      "Transactions executed, committed or not.",
		}),
		slot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "slot",
			Help:      "Current bank slot.",
		}),
	}
	m.registry.MustRegister(m.txErrors, m.processed, m.simulated, m.slot)
	return m
}

func (m *Metrics) recordTxError(err error) {
	m.txErrors.WithLabelValues(txErrReason(err)).Inc()
}
