package topic

import "github.com/prometheus/client_golang/prometheus"

// eventsDelivered counts events accepted and broadcast to local subscribers
// by any Delivery tracker (spec's ambient observability: "topic export
// prometheus/client_golang counters/gauges (... events delivered ...)").
var eventsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "ng_topic",
	Name:      "events_delivered_total",
	Help:      "Total topic events accepted and delivered to local subscribers.",
})

func init() {
	prometheus.MustRegister(eventsDelivered)
}
