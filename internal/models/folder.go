package models

import "time"

// Folder is a library destination directory for downloaded files.
type Folder struct {
	ID   string    `json:"id"`
	Path string    `json:"path"`
	Kind MediaKind `json:"kind"`
}

// DownloadSummary is a point-in-time view of one active transfer.
type DownloadSummary struct {
	ID              string         `json:"id"`
	Filename        string         `json:"filename"`
	SourceURL       string         `json:"sourceUrl"`
	SourceKind      MediaKind      `json:"sourceKind"`
	Status          DownloadStatus `json:"status"`
	DownloadedBytes int64          `json:"downloadedBytes"`
	TotalBytes      int64          `json:"totalBytes"`
	StartedAt       time.Time      `json:"startedAt"`
}

// QueuedItem identifies one not-yet-started download, in queue order.
type QueuedItem struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}
