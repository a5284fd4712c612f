// Package metrics exposes the run's live counters as Prometheus metrics:
// downloads by status, errors by errs.Kind, page-queue depth, and
// throttle wait time. Grounded on the teacher's internal/metrics
// (promauto-registered CounterVec/HistogramVec plus a promhttp.Handler
// server), re-labeled from the teacher's detection/proxy-centric metrics
// to this spec's pipeline stages.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sws_downloads_total",
			Help: "Total number of page/sitemap downloads attempted, by HTTP status",
		},
		[]string{"status"},
	)

	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sws_download_duration_seconds",
			Help:    "Duration of downloads in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sws_errors_total",
			Help: "Total number of errors raised during a run, by errs.Kind",
		},
		[]string{"kind"},
	)

	RecordsEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sws_records_emitted_total",
			Help: "Total number of CSV records emitted by scrapPage across the run",
		},
	)

	PageQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sws_page_queue_depth",
			Help: "Current number of downloaded pages waiting for a worker",
		},
	)

	ThrottleWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sws_throttle_wait_seconds",
			Help:    "Time a downloader spent blocked on Throttler.Acquire",
			Buckets: []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// RecordDownload updates the download counters/histogram for one
// completed (successful or failed) download attempt. statusCode is 0 for
// a download that never produced a response (dial/timeout failure).
func RecordDownload(statusCode int, dur time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	DownloadsTotal.WithLabelValues(status).Inc()
	DownloadDuration.WithLabelValues(status).Observe(dur.Seconds())
}

// RecordError increments ErrorsTotal for the given errs.Kind string.
func RecordError(kind string) {
	ErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordThrottleWait observes the time a downloader spent waiting to
// acquire the Throttler.
func RecordThrottleWait(d time.Duration) {
	ThrottleWaitSeconds.Observe(d.Seconds())
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
// The server runs in a background goroutine and must be stopped via Server.Stop()
// to release resources and avoid leaks.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
