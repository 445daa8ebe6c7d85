package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arduino_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arduino_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"path", "method", "status"},
	)

	RegisteredMachines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arduino_registered_machines_total",
			Help: "Number of machines currently registered",
		},
	)

	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arduino_active_tasks_total",
			Help: "Number of tasks in running or paused state",
		},
	)

	TasksKilled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arduino_tasks_killed_total",
			Help: "Total number of task kill operations that removed a task",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arduino_notifications_sent_total",
			Help: "Web push notifications attempted",
		},
		[]string{"status"},
	)

	LogRelayTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arduino_log_relay_total",
			Help: "Device log lines relayed to external targets",
		},
		[]string{"target", "status"},
	)
)
