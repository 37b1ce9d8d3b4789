package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalgate_signals_total",
		Help: "The total number of inbound signals by source and outcome",
	}, []string{"source", "status"})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalgate_orders_total",
		Help: "The total number of orders forwarded to venues",
	}, []string{"venue", "status"})

	GuardrailRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalgate_guardrail_rejects_total",
		Help: "Total guardrail rejections by machine code",
	}, []string{"code"})

	QueueJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalgate_queue_jobs_total",
		Help: "Queue job outcomes",
	}, []string{"queue", "outcome"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalgate_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"path"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
