package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hotelledger",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	grpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hotelledger",
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by method and code.",
		},
		[]string{"method", "code"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hotelledger",
			Name:      "bookings_total",
			Help:      "Booking lifecycle operations by outcome.",
		},
		[]string{"outcome"},
	)

	inventoryReceipts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hotelledger",
			Name:      "inventory_receipts_total",
			Help:      "Inventory order receipts by outcome.",
		},
		[]string{"outcome"},
	)

	mirrorTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hotelledger",
			Name:      "mirror_tasks_total",
			Help:      "Sheets mirror tasks by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, grpcRequests, bookings, inventoryReceipts, mirrorTasks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncGRPC(method, code string) {
	grpcRequests.WithLabelValues(method, code).Inc()
}

// IncBooking counts a booking operation outcome, e.g. "created", "conflict".
func IncBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

func IncInventoryReceipt(outcome string) {
	inventoryReceipts.WithLabelValues(outcome).Inc()
}

func IncMirrorTask(result string) {
	mirrorTasks.WithLabelValues(result).Inc()
}
