package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rejectedTotal — отклонённые лимитером запросы по маршрутам.
	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "admission",
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"route"})

	// degradedTotal — решения, принятые fail-open из-за недоступности счётчиков.
	degradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "admission",
		Subsystem: "ratelimit",
		Name:      "degraded_total",
		Help:      "Fail-open decisions taken while the counter store was unavailable.",
	})
)
