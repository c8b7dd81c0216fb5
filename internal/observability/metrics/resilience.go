package metrics

import "github.com/prometheus/client_golang/prometheus"

// ResilienceObserver feeds retry and breaker events into Prometheus.
type ResilienceObserver struct {
	service string
	retries *prometheus.CounterVec
	breaker *prometheus.GaugeVec
}

func (o *ResilienceObserver) ObserveRetry(operation string) {
	o.retries.WithLabelValues(o.service, operation).Inc()
}

func (o *ResilienceObserver) ObserveBreakerState(operation, state string) {
	open := 0.0
	if state != "closed" {
		open = 1
	}
	o.breaker.WithLabelValues(o.service, operation).Set(open)
}
