package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citytours",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "citytours",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Upload outcomes per file; status is "success" or an error code
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citytours",
			Subsystem: "media",
			Name:      "uploads_total",
			Help:      "Total processed upload files by outcome",
		},
		[]string{"status"},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "citytours",
			Subsystem: "media",
			Name:      "stored_bytes_total",
			Help:      "Total bytes of optimized images stored",
		},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "citytours",
			Subsystem: "media",
			Name:      "processing_duration_seconds",
			Help:      "Image decode, resize and encode duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citytours",
			Subsystem: "media",
			Name:      "storage_operations_total",
			Help:      "Total storage operations by backend, operation and status",
		},
		[]string{"backend", "operation", "status"},
	)

	TourCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citytours",
			Subsystem: "tours",
			Name:      "cache_lookups_total",
			Help:      "Tour cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// RecordUpload records the outcome of one uploaded file
func RecordUpload(status string, storedBytes int64) {
	UploadsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		UploadBytesTotal.Add(float64(storedBytes))
	}
}

// RecordProcessing records codec time for one file
func RecordProcessing(durationSec float64) {
	ProcessingDuration.Observe(durationSec)
}

// RecordStorage records a storage operation
func RecordStorage(backend, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordCacheLookup records a tour cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		TourCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	TourCacheLookups.WithLabelValues("miss").Inc()
}
