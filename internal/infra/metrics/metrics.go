package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alerter_tick_duration_seconds",
		Help:    "Длительность тела тика",
		Buckets: prometheus.DefBuckets,
	}, []string{"tick"})

	TickSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerter_tick_skipped_total",
		Help: "Тики, пропущенные из-за ещё выполняющегося тела",
	}, []string{"tick"})

	TickErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerter_tick_errors_total",
		Help: "Тики, прерванные ошибкой источника данных",
	}, []string{"tick"})

	AlertsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerter_alerts_delivered_total",
		Help: "Доставленные алерты",
	}, []string{"kind", "destination"})

	DeliveryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerter_delivery_errors_total",
		Help: "Ошибки доставки алертов",
	}, []string{"kind", "reason"})

	AlertsSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerter_alerts_suppressed_total",
		Help: "Алерты, подавленные DND, кулдауном или блоклистом",
	}, []string{"kind", "cause"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		TickDuration,
		TickSkipped,
		TickErrors,
		AlertsDelivered,
		DeliveryErrors,
		AlertsSuppressed,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveTick записывает длительность и исход тела тика.
func ObserveTick(tick string, start time.Time, err error) {
	TickDuration.WithLabelValues(tick).Observe(time.Since(start).Seconds())
	if err != nil {
		TickErrors.WithLabelValues(tick).Inc()
	}
}
