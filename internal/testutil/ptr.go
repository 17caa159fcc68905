package testutil

import (
	"time"

	"github.com/magicianjarden/audiio-official-sub003/internal/models"
)

// IntPtr is a helper for creating *int values in tests
func IntPtr(v int) *int {
	return &v
}

// Int64Ptr is a helper for creating *int64 values in tests
func Int64Ptr(v int64) *int64 {
	return &v
}

// StringPtr is a helper for creating *string values in tests
func StringPtr(v string) *string {
	return &v
}

// StatusPtr is a helper for creating *models.DownloadStatus values in tests
func StatusPtr(v models.DownloadStatus) *models.DownloadStatus {
	return &v
}

// TimePtr is a helper for creating *time.Time values in tests
func TimePtr(v time.Time) *time.Time {
	return &v
}
