package manager

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/metrics"
	"github.com/magicianjarden/audiio-official-sub003/internal/models"
	"github.com/magicianjarden/audiio-official-sub003/internal/transfer"
)

// processQueue starts queued downloads while free concurrency slots remain.
// It runs on submission and on every transfer's termination, which is what
// keeps the queue advancing without a scheduler tick.
func (m *DownloadManager) processQueue() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.queue) > 0 && len(m.active) < m.maxConcurrent {
		next := m.queue[0]
		m.queue = m.queue[1:]

		ctx, cancel := context.WithCancel(context.Background())
		entry := &activeDownload{
			id:        next.id,
			request:   next.request,
			filename:  next.filename,
			finalPath: next.finalPath,
			cancel:    cancel,
			startedAt: time.Now(),
			status:    models.StatusDownloading,
		}
		m.active[next.id] = entry

		m.wg.Add(1)
		go m.run(ctx, entry)
	}
	m.updateGaugesLocked()
}

// run drives one transfer to a terminal state, settles the record, frees the
// concurrency slot and re-enters queue processing. Nothing escapes it:
// every failure ends as a record update plus a terminal event.
func (m *DownloadManager) run(ctx context.Context, entry *activeDownload) {
	defer m.wg.Done()
	logger := config.GetLogger()

	status := models.StatusDownloading
	if err := m.store.UpdateDownloadRecord(ctx, entry.id, models.RecordUpdate{Status: &status}); err != nil {
		logger.Error().Err(err).Str("id", entry.id).Msg("Failed to mark record downloading")
	}
	logger.Info().Str("id", entry.id).Str("url", entry.request.SourceURL).Msg("Download started")
	m.emit(models.DownloadProgressEvent{
		ID:       entry.id,
		Status:   models.StatusDownloading,
		Filename: entry.filename,
	})

	result, err := m.engine.Download(ctx, entry.request.SourceURL, entry.finalPath, func(p transfer.Progress) {
		entry.downloadedBytes.Store(p.DownloadedBytes)
		entry.totalBytes.Store(p.TotalBytes)
		m.emit(models.DownloadProgressEvent{
			ID:               entry.id,
			Status:           models.StatusDownloading,
			ProgressPercent:  p.Percent,
			DownloadedBytes:  p.DownloadedBytes,
			TotalBytes:       p.TotalBytes,
			SpeedBytesPerSec: p.SpeedBytesPerSec,
			ETASeconds:       p.ETASeconds,
			Filename:         entry.filename,
		})
		m.persistProgress(entry, p)
	})

	switch {
	case err == nil:
		m.finishCompleted(ctx, entry, result)
	case errors.Is(err, context.Canceled):
		m.finishCancelled(entry)
	default:
		m.finishFailed(entry, err)
	}

	m.mu.Lock()
	delete(m.active, entry.id)
	delete(m.claims, entry.finalPath)
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.processQueue()
}

// persistProgress batches record writes at a coarse percent interval so a
// chunked transfer does not hammer the store. Events still fire on every
// sample; only persistence is throttled.
func (m *DownloadManager) persistProgress(entry *activeDownload, p transfer.Progress) {
	if p.Percent < entry.lastPersisted+m.progressStep {
		return
	}
	entry.lastPersisted = p.Percent

	update := models.RecordUpdate{
		ProgressPercent: &p.Percent,
		DownloadedBytes: &p.DownloadedBytes,
	}
	if p.TotalBytes > 0 {
		update.TotalBytes = &p.TotalBytes
	}
	if err := m.store.UpdateDownloadRecord(context.Background(), entry.id, update); err != nil {
		config.GetLogger().Error().Err(err).Str("id", entry.id).Msg("Failed to persist progress")
	}
}

// finishCompleted runs the optional tag-embedding step and settles the
// record as completed. Once the payload is renamed into place the outcome is
// completed no matter what happens during processing: the file's existence
// and the completed status must agree.
func (m *DownloadManager) finishCompleted(ctx context.Context, entry *activeDownload, result *transfer.Result) {
	logger := config.GetLogger()

	if m.embedder.CanEmbed(entry.finalPath) && !entry.request.Metadata.IsEmpty() {
		m.setStatus(entry, models.StatusProcessing)
		status := models.StatusProcessing
		if err := m.store.UpdateDownloadRecord(context.Background(), entry.id, models.RecordUpdate{Status: &status}); err != nil {
			logger.Error().Err(err).Str("id", entry.id).Msg("Failed to mark record processing")
		}
		m.emit(models.DownloadProgressEvent{
			ID:              entry.id,
			Status:          models.StatusProcessing,
			ProgressPercent: transfer.PercentCap,
			DownloadedBytes: result.BytesWritten,
			TotalBytes:      result.TotalBytes,
			Filename:        entry.filename,
		})
		m.embedder.Apply(ctx, entry.finalPath, entry.request.Metadata)
	}

	now := time.Now().UTC()
	status := models.StatusCompleted
	percent := 100
	update := models.RecordUpdate{
		Status:          &status,
		ProgressPercent: &percent,
		DownloadedBytes: &result.BytesWritten,
		TotalBytes:      &result.TotalBytes,
		FilePath:        &entry.finalPath,
		CompletedAt:     &now,
	}
	if err := m.store.UpdateDownloadRecord(context.Background(), entry.id, update); err != nil {
		logger.Error().Err(err).Str("id", entry.id).Msg("Failed to mark record completed")
	}

	metrics.DownloadsFinishedTotal.WithLabelValues("completed").Inc()
	metrics.DownloadedBytesTotal.Add(float64(result.BytesWritten))
	logger.Info().
		Str("id", entry.id).
		Str("path", entry.finalPath).
		Int64("bytes", result.BytesWritten).
		Dur("elapsed", time.Since(entry.startedAt)).
		Msg("Download completed")

	m.emit(models.DownloadProgressEvent{
		ID:              entry.id,
		Status:          models.StatusCompleted,
		ProgressPercent: 100,
		DownloadedBytes: result.BytesWritten,
		TotalBytes:      result.TotalBytes,
		Filename:        entry.filename,
		FilePath:        entry.finalPath,
	})
}

// finishCancelled settles a transfer that observed its cancellation token.
func (m *DownloadManager) finishCancelled(entry *activeDownload) {
	status := models.StatusCancelled
	downloaded := entry.downloadedBytes.Load()
	update := models.RecordUpdate{
		Status:          &status,
		DownloadedBytes: &downloaded,
	}
	if err := m.store.UpdateDownloadRecord(context.Background(), entry.id, update); err != nil {
		config.GetLogger().Error().Err(err).Str("id", entry.id).Msg("Failed to mark record cancelled")
	}

	metrics.DownloadsFinishedTotal.WithLabelValues("cancelled").Inc()
	config.GetLogger().Info().Str("id", entry.id).Msg("Download cancelled")
	m.emit(models.DownloadProgressEvent{
		ID:              entry.id,
		Status:          models.StatusCancelled,
		DownloadedBytes: downloaded,
		TotalBytes:      entry.totalBytes.Load(),
		Filename:        entry.filename,
	})
}

// finishFailed settles an unrecoverable transfer.
func (m *DownloadManager) finishFailed(entry *activeDownload, err error) {
	logger := config.GetLogger()
	logger.Error().Err(err).Str("id", entry.id).Str("url", entry.request.SourceURL).Msg("Download failed")
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("download_id", entry.id)
		sentry.CaptureException(err)
	})

	status := models.StatusFailed
	message := err.Error()
	downloaded := entry.downloadedBytes.Load()
	update := models.RecordUpdate{
		Status:          &status,
		Error:           &message,
		DownloadedBytes: &downloaded,
	}
	if uerr := m.store.UpdateDownloadRecord(context.Background(), entry.id, update); uerr != nil {
		logger.Error().Err(uerr).Str("id", entry.id).Msg("Failed to mark record failed")
	}

	metrics.DownloadsFinishedTotal.WithLabelValues("failed").Inc()
	m.emit(models.DownloadProgressEvent{
		ID:              entry.id,
		Status:          models.StatusFailed,
		DownloadedBytes: downloaded,
		TotalBytes:      entry.totalBytes.Load(),
		Filename:        entry.filename,
		Error:           message,
	})
}
