package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tickCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseflow_task_ticks_total",
		Help: "Scheduled task executions by outcome",
	}, []string{"task", "status"})
	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulseflow_task_tick_duration_seconds",
		Help:    "Duration of scheduled task executions",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"task"})
	registeredTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulseflow_scheduler_tasks",
		Help: "Number of tasks currently registered with the scheduler",
	})
	probeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseflow_probe_results_total",
		Help: "Uptime probe results by status",
	}, []string{"status"})
	certDays = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pulseflow_certificate_days_remaining",
		Help: "Days until the observed TLS certificate expires",
	}, []string{"domain"})
	outboxCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseflow_outbox_events_total",
		Help: "Outbox events by processing stage",
	}, []string{"status"})
	deliveryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseflow_notification_deliveries_total",
		Help: "Notification delivery outcomes by channel",
	}, []string{"channel", "status"})
	suppressedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseflow_notifications_suppressed_total",
		Help: "Notifications skipped by the cooldown gate",
	}, []string{"event_type"})
)

type prometheusObserver struct{}

func NewPrometheusObserver() Observer {
	return &prometheusObserver{}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) ObserveTick(task, status string, duration time.Duration) {
	tickCounter.WithLabelValues(task, status).Inc()
	tickDuration.WithLabelValues(task).Observe(duration.Seconds())
}

func (p *prometheusObserver) SetRegisteredTasks(n int) {
	registeredTasks.Set(float64(n))
}

func (p *prometheusObserver) RecordProbe(status string) {
	probeCounter.WithLabelValues(status).Inc()
}

func (p *prometheusObserver) SetCertificateDays(domain string, days int) {
	certDays.WithLabelValues(domain).Set(float64(days))
}

func (p *prometheusObserver) RecordOutbox(status string, n int) {
	if n <= 0 {
		return
	}
	outboxCounter.WithLabelValues(status).Add(float64(n))
}

func (p *prometheusObserver) RecordDelivery(channel, status string) {
	deliveryCounter.WithLabelValues(channel, status).Inc()
}

func (p *prometheusObserver) RecordSuppressed(eventType string) {
	suppressedCounter.WithLabelValues(eventType).Inc()
}
