package models

import "time"

// DownloadRecord is the durable row for one download. It is created at
// submission with status queued, updated in place on every state transition,
// and never deleted by this subsystem.
type DownloadRecord struct {
	ID              string         `json:"id"`
	FolderID        string         `json:"folderId,omitempty"`
	SourceURL       string         `json:"sourceUrl"`
	SourceKind      MediaKind      `json:"sourceKind"`
	Filename        string         `json:"filename"`
	Status          DownloadStatus `json:"status"`
	ProgressPercent int            `json:"progressPercent"`
	TotalBytes      int64          `json:"totalBytes"`
	DownloadedBytes int64          `json:"downloadedBytes"`
	FilePath        string         `json:"filePath,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
}

// RecordUpdate carries a partial update for a download record. Nil fields
// keep their stored value.
type RecordUpdate struct {
	Status          *DownloadStatus
	ProgressPercent *int
	TotalBytes      *int64
	DownloadedBytes *int64
	FilePath        *string
	Error           *string
	CompletedAt     *time.Time
}
