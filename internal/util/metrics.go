package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallbacksVerifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_callbacks_verified_total",
		Help: "Total number of webhook callbacks that passed verification",
	}, []string{"kind"})

	CallbacksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_callbacks_rejected_total",
		Help: "Total number of webhook callbacks rejected",
	}, []string{"kind", "reason"})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders transitioned to PAID",
	})

	OrdersPaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_payment_failed_total",
		Help: "Total number of orders transitioned to FAILED",
	})

	DepositsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposits_created_total",
		Help: "Total number of deposit pre-authorizations created",
	})

	DepositsHeldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposits_held_total",
		Help: "Total number of deposits confirmed held by the gateway",
	})

	CapturesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposit_captures_total",
		Help: "Total number of successful deposit captures",
	})

	CapturesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deposit_captures_failed_total",
		Help: "Total number of failed deposit captures",
	}, []string{"reason"})

	VoidsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposit_voids_total",
		Help: "Total number of successful deposit voids",
	})

	VoidsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deposit_voids_failed_total",
		Help: "Total number of failed deposit voids",
	}, []string{"reason"})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of synchronous gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
