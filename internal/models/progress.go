package models

// DownloadProgressEvent is fire-and-forget telemetry for one download,
// emitted on every data event and on every state transition. It is never
// authoritative; the persisted DownloadRecord is.
type DownloadProgressEvent struct {
	ID               string         `json:"id"`
	Status           DownloadStatus `json:"status"`
	ProgressPercent  int            `json:"progressPercent"`
	DownloadedBytes  int64          `json:"downloadedBytes"`
	TotalBytes       int64          `json:"totalBytes,omitempty"` // zero when the origin never declared a length
	SpeedBytesPerSec float64        `json:"speedBytesPerSec"`
	ETASeconds       float64        `json:"etaSeconds"`
	Filename         string         `json:"filename"`
	FilePath         string         `json:"filePath,omitempty"` // set on the terminal completed event
	Error            string         `json:"error,omitempty"`    // set on the terminal failed event
}
