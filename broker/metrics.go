package broker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instrumentation (spec's ambient observability: "broker ... export
// prometheus/client_golang counters/gauges (sessions open, ...")). Exported
// via prometheus.DefaultRegisterer so embedding applications only need to
// serve /metrics themselves; this package never starts its own HTTP server.
var (
	sessionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ng_broker",
		Name:      "sessions_open",
		Help:      "Number of local sessions currently open.",
	})

	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ng_broker",
		Name:      "app_requests_total",
		Help:      "Total AppRequest commands dispatched, by command name.",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(sessionsOpen, requestsTotal)
}
