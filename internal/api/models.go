package api

import "github.com/magicianjarden/audiio-official-sub003/internal/models"

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// DownloadsSnapshot is returned by GET /api/v1/downloads: the live queue
// state plus the persisted records, newest first.
type DownloadsSnapshot struct {
	Active  []models.DownloadSummary `json:"active"`
	Queued  []models.QueuedItem      `json:"queued"`
	Records []models.DownloadRecord  `json:"records"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
