package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LocksActive        prometheus.Gauge
	LockRejections     *prometheus.CounterVec
	Operations         *prometheus.CounterVec
	ConfirmExpirations prometheus.Counter
	GatewayRequests    *prometheus.CounterVec
	GatewayDuration    *prometheus.HistogramVec
	CallbacksProcessed *prometheus.CounterVec
	CompensationsTotal prometheus.Counter
}

// New registers all wallet metrics against reg. Tests pass a fresh
// prometheus.NewRegistry so parallel test packages do not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LocksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bingo_wallet",
			Subsystem: "locks",
			Name:      "active",
			Help:      "Number of live account operation locks.",
		}),
		LockRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo_wallet",
			Subsystem: "locks",
			Name:      "rejections_total",
			Help:      "Acquisitions rejected because a lock was already held.",
		}, []string{"operation"}),
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo_wallet",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Financial operations partitioned by kind and outcome.",
		}, []string{"kind", "status"}),
		ConfirmExpirations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bingo_wallet",
			Subsystem: "transfers",
			Name:      "confirm_expirations_total",
			Help:      "Pending transfers auto-cancelled on confirmation timeout.",
		}),
		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo_wallet",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway calls partitioned by call name and outcome.",
		}, []string{"call", "outcome"}),
		GatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bingo_wallet",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		CallbacksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo_wallet",
			Subsystem: "reconciler",
			Name:      "callbacks_total",
			Help:      "Gateway callback events processed by result.",
		}, []string{"result"}),
		CompensationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bingo_wallet",
			Subsystem: "ledger",
			Name:      "compensations_total",
			Help:      "Withdrawal debits re-credited after a gateway failure.",
		}),
	}
}
