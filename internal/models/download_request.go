package models

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/magicianjarden/audiio-official-sub003/internal/apperrors"
)

// DownloadRequest describes one payload to pull from a CDN. It is immutable
// once submitted; everything mutable about a running download lives on the
// manager's active entry and the persisted record.
type DownloadRequest struct {
	ID             string          `json:"id,omitempty"`             // assigned by the manager when empty
	SourceURL      string          `json:"sourceUrl"`                // pre-resolved/pre-signed payload URL
	TargetFolderID string          `json:"targetFolderId,omitempty"` // library folder; empty selects a default by kind
	FilenameStem   string          `json:"filenameStem"`
	FileExtension  string          `json:"fileExtension"` // including the dot, e.g. ".mp3"
	SourceKind     MediaKind       `json:"sourceKind"`
	Metadata       *TrackTags      `json:"metadata,omitempty"`
	Passthrough    json.RawMessage `json:"passthrough,omitempty"` // opaque caller data, echoed back untouched
}

// Validate rejects requests that must never reach the queue. Failures are
// reported synchronously to the submitter; nothing is persisted for them.
func (r *DownloadRequest) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return apperrors.NewValidationError("sourceUrl", "must not be empty")
	}
	parsed, err := url.Parse(r.SourceURL)
	if err != nil {
		return apperrors.NewValidationError("sourceUrl", "must be a parseable URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return apperrors.NewValidationError("sourceUrl", "must use http or https")
	}
	if parsed.Host == "" {
		return apperrors.NewValidationError("sourceUrl", "must include a host")
	}
	if r.SourceKind != MediaKindAudio && r.SourceKind != MediaKindVideo {
		return apperrors.NewValidationError("sourceKind", `must be "audio" or "video"`)
	}
	return nil
}

// Filename joins the stem and extension as submitted, before sanitization.
func (r *DownloadRequest) Filename() string {
	return r.FilenameStem + r.FileExtension
}
