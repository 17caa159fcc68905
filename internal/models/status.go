package models

// DownloadStatus is the lifecycle state of a download. Records move forward
// only: queued → downloading → (processing) → completed | failed | cancelled.
type DownloadStatus string

const (
	StatusQueued      DownloadStatus = "queued"
	StatusDownloading DownloadStatus = "downloading"
	StatusProcessing  DownloadStatus = "processing"
	StatusCompleted   DownloadStatus = "completed"
	StatusFailed      DownloadStatus = "failed"
	StatusCancelled   DownloadStatus = "cancelled"
)

// IsTerminal reports whether the status absorbs all further events for its id.
func (s DownloadStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a transfer or post-processing step is in flight.
func (s DownloadStatus) IsActive() bool {
	return s == StatusDownloading || s == StatusProcessing
}

// CanTransitionTo reports whether the state machine permits moving to next.
// Any non-terminal state may move to failed or cancelled; terminal states
// accept nothing.
func (s DownloadStatus) CanTransitionTo(next DownloadStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StatusFailed, StatusCancelled:
		return true
	case StatusDownloading:
		return s == StatusQueued
	case StatusProcessing:
		return s == StatusDownloading
	case StatusCompleted:
		return s == StatusDownloading || s == StatusProcessing
	default:
		return false
	}
}
