package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agendazap"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Availability checks by result status.",
		},
		[]string{"status"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Booking confirmations by result status.",
		},
		[]string{"status"},
	)

	cancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_canceled_total",
			Help:      "Appointments canceled through the conversation.",
		},
	)

	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "WhatsApp messages by direction.",
		},
		[]string{"direction"},
	)

	tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Outbox task outcomes by type and status.",
		},
		[]string{"type", "status"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent in scheduling operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			availabilityChecks,
			bookings,
			cancellations,
			messages,
			tasks,
			operationDuration,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncCheck(status string) {
	availabilityChecks.WithLabelValues(status).Inc()
}

func IncBooking(status string) {
	bookings.WithLabelValues(status).Inc()
}

func IncCancel() {
	cancellations.Inc()
}

func IncMessage(direction string) {
	messages.WithLabelValues(direction).Inc()
}

func IncTask(taskType, status string) {
	tasks.WithLabelValues(taskType, status).Inc()
}

// ObserveOperation records how long an operation took, in seconds.
func ObserveOperation(operation string, seconds float64) {
	operationDuration.WithLabelValues(operation).Observe(seconds)
}
