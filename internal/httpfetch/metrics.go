// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package httpfetch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are package-level counters registered once against
// prometheus.DefaultRegisterer, following the registration pattern in
// APTlantis's internal/downloader.initMetrics. internal/server exposes them
// on /metrics via promhttp.Handler.
var (
	metricsOnce sync.Once

	bytesDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zsyncgo_http_bytes_downloaded_total",
		Help: "Total bytes received over HTTP range fetches.",
	})
	retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zsyncgo_http_retries_total",
		Help: "Total retry attempts after a transient HTTP failure.",
	})
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zsyncgo_http_requests_total",
		Help: "HTTP requests by outcome.",
	}, []string{"outcome"})
)

// RegisterMetrics registers this package's collectors against reg. Safe to
// call more than once; only the first call registers anything.
func RegisterMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		reg.MustRegister(bytesDownloaded, retriesTotal, requestsTotal)
	})
}
