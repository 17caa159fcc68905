package transfer

import "time"

// PercentCap is the highest percent reported while bytes are still
// moving. The last stretch is reserved for post-transfer steps; 100 is only
// ever set once the payload is complete on disk.
const PercentCap = 95

// Progress is one point-in-time sample of a transfer.
type Progress struct {
	DownloadedBytes  int64
	TotalBytes       int64 // non-positive when the origin never declared one
	Percent          int
	SpeedBytesPerSec float64
	ETASeconds       float64
}

// Compute derives a sample from cumulative downloaded bytes and the time
// elapsed since the transfer began. Speed and ETA are recomputed whole from
// these two inputs at every call rather than accumulated incrementally, so
// samples cannot drift. ETA is 0 whenever speed is not positive or the total
// is unknown.
func Compute(downloadedBytes, totalBytes int64, elapsed time.Duration) Progress {
	sample := Progress{
		DownloadedBytes: downloadedBytes,
		TotalBytes:      totalBytes,
	}

	if secs := elapsed.Seconds(); secs > 0 {
		sample.SpeedBytesPerSec = float64(downloadedBytes) / secs
	}

	if totalBytes > 0 {
		percent := int(downloadedBytes * 100 / totalBytes)
		if percent > PercentCap {
			percent = PercentCap
		}
		sample.Percent = percent

		if sample.SpeedBytesPerSec > 0 && downloadedBytes < totalBytes {
			sample.ETASeconds = float64(totalBytes-downloadedBytes) / sample.SpeedBytesPerSec
		}
	}

	return sample
}
