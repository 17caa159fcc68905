package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Download lifecycle metrics
var (
	DownloadsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "downloads_submitted_total",
			Help: "Total number of accepted download submissions.",
		},
	)

	DownloadsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downloads_finished_total",
			Help: "Total number of downloads that reached a terminal state.",
		},
		[]string{"status"},
	)

	DownloadedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "downloaded_bytes_total",
			Help: "Total payload bytes written to disk across all downloads.",
		},
	)

	ActiveDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_downloads",
			Help: "Number of transfers currently holding a concurrency slot.",
		},
	)

	QueuedDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queued_downloads",
			Help: "Number of downloads waiting for a free concurrency slot.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		DownloadsSubmittedTotal,
		DownloadsFinishedTotal,
		DownloadedBytesTotal,
		ActiveDownloads,
		QueuedDownloads,
	)
}
