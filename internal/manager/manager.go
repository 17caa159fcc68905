// Package manager owns the download lifecycle: admission and validation,
// the FIFO queue with its concurrency cap, per-download cancellation,
// progress event fan-out and the persisted record's upkeep.
package manager

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/library"
	"github.com/magicianjarden/audiio-official-sub003/internal/metrics"
	"github.com/magicianjarden/audiio-official-sub003/internal/models"
	"github.com/magicianjarden/audiio-official-sub003/internal/store"
	"github.com/magicianjarden/audiio-official-sub003/internal/tags"
	"github.com/magicianjarden/audiio-official-sub003/internal/transfer"
)

// SubmitResult is the synchronous answer to a submission. Everything that
// happens to the download afterwards surfaces through progress events and
// the persisted record, never as an error from Submit.
type SubmitResult struct {
	ID string `json:"id"`

	// AlreadyQueued marks a submission whose resolved destination is claimed
	// by an earlier queued or active download; ID names that download.
	AlreadyQueued bool `json:"alreadyQueued,omitempty"`

	// AlreadyExists marks an idempotent resubmission: the file was on disk,
	// a synthetic completed event was emitted and no transfer started.
	AlreadyExists bool `json:"alreadyExists,omitempty"`

	FilePath string `json:"filePath,omitempty"`
}

// queuedDownload is one accepted submission waiting for a concurrency slot.
type queuedDownload struct {
	id        string
	request   models.DownloadRequest
	filename  string
	finalPath string
}

// activeDownload is the manager's handle on one running transfer. The byte
// counters are written by the transfer goroutine and read by snapshot
// queries; status is guarded by the manager mutex.
type activeDownload struct {
	id        string
	request   models.DownloadRequest
	filename  string
	finalPath string
	cancel    context.CancelFunc
	startedAt time.Time

	status          models.DownloadStatus
	downloadedBytes atomic.Int64
	totalBytes      atomic.Int64

	// lastPersisted is the progress percent of the most recent record write,
	// touched only by the download's own goroutine.
	lastPersisted int
}

// DownloadManager serializes every queue and claim mutation behind one
// mutex; transfers themselves run on their own goroutines and re-enter
// processQueue when they terminate, so the queue advances without an
// external scheduler tick.
type DownloadManager struct {
	engine   *transfer.Engine
	store    store.Store
	resolver library.TargetResolver
	embedder *tags.Embedder

	maxConcurrent int
	progressStep  int

	mu     sync.Mutex
	queue  []*queuedDownload
	active map[string]*activeDownload
	claims map[string]string // resolved final path -> download id

	subMu       sync.RWMutex
	subscribers map[uint64]chan models.DownloadProgressEvent
	nextSubID   uint64

	wg sync.WaitGroup
}

// New wires the manager to its collaborators. embedder may be nil, which
// disables the processing phase entirely.
func New(cfg *config.Config, engine *transfer.Engine, st store.Store, resolver library.TargetResolver, embedder *tags.Embedder) *DownloadManager {
	maxConcurrent := cfg.Downloads.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = config.DefaultMaxConcurrent
	}
	progressStep := cfg.Downloads.ProgressStep
	if progressStep <= 0 {
		progressStep = config.DefaultProgressStep
	}

	return &DownloadManager{
		engine:        engine,
		store:         st,
		resolver:      resolver,
		embedder:      embedder,
		maxConcurrent: maxConcurrent,
		progressStep:  progressStep,
		active:        make(map[string]*activeDownload),
		claims:        make(map[string]string),
		subscribers:   make(map[uint64]chan models.DownloadProgressEvent),
	}
}

// Submit validates and enqueues one download. Validation and setup failures
// are returned synchronously; an accepted submission's id is the handle for
// cancellation and progress events.
func (m *DownloadManager) Submit(ctx context.Context, req models.DownloadRequest) (*SubmitResult, error) {
	logger := config.GetLogger()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	dir, folderID := m.resolver.ResolveDir(req.TargetFolderID, req.SourceKind)
	if err := library.EnsureDir(dir); err != nil {
		return nil, err
	}
	filename := library.SanitizeFilenameStem(req.FilenameStem) + library.SanitizeExtension(req.FileExtension)
	finalPath := filepath.Join(dir, filename)

	// Idempotent resubmission: the payload is already on disk, so answer
	// with a synthetic completed event and skip the network entirely.
	if info, err := os.Stat(finalPath); err == nil {
		logger.Info().Str("id", req.ID).Str("path", finalPath).Msg("File already exists, skipping download")
		m.emit(models.DownloadProgressEvent{
			ID:              req.ID,
			Status:          models.StatusCompleted,
			ProgressPercent: 100,
			DownloadedBytes: info.Size(),
			TotalBytes:      info.Size(),
			Filename:        filename,
			FilePath:        finalPath,
		})
		return &SubmitResult{ID: req.ID, AlreadyExists: true, FilePath: finalPath}, nil
	}

	// Claim the destination before anything observable happens. A second
	// submission racing for the same final path folds into the first instead
	// of racing the filesystem.
	m.mu.Lock()
	if owner, claimed := m.claims[finalPath]; claimed {
		m.mu.Unlock()
		logger.Debug().Str("id", owner).Str("path", finalPath).Msg("Destination already claimed, folding submission")
		return &SubmitResult{ID: owner, AlreadyQueued: true, FilePath: finalPath}, nil
	}
	m.claims[finalPath] = req.ID
	m.mu.Unlock()

	if err := m.store.CreateDownloadRecord(ctx, req.ID, req.SourceURL, req.SourceKind, filename, folderID); err != nil {
		m.mu.Lock()
		delete(m.claims, finalPath)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.queue = append(m.queue, &queuedDownload{
		id:        req.ID,
		request:   req,
		filename:  filename,
		finalPath: finalPath,
	})
	m.updateGaugesLocked()
	// Emitted under the lock so the queued event always precedes the
	// downloading event a racing slot could produce.
	m.emit(models.DownloadProgressEvent{
		ID:       req.ID,
		Status:   models.StatusQueued,
		Filename: filename,
	})
	m.mu.Unlock()

	metrics.DownloadsSubmittedTotal.Inc()
	logger.Info().Str("id", req.ID).Str("url", req.SourceURL).Str("filename", filename).Msg("Download queued")

	m.processQueue()
	return &SubmitResult{ID: req.ID, FilePath: finalPath}, nil
}

// Cancel stops a download. A queued item is removed and its record settled
// immediately; an active one has its context cancelled and settles through
// the transfer's own cleanup path without blocking the caller. Unknown and
// already-terminal ids report false.
func (m *DownloadManager) Cancel(id string) bool {
	m.mu.Lock()
	for i, q := range m.queue {
		if q.id != id {
			continue
		}
		m.queue = append(m.queue[:i], m.queue[i+1:]...)
		delete(m.claims, q.finalPath)
		m.updateGaugesLocked()
		m.mu.Unlock()

		status := models.StatusCancelled
		if err := m.store.UpdateDownloadRecord(context.Background(), id, models.RecordUpdate{Status: &status}); err != nil {
			config.GetLogger().Error().Err(err).Str("id", id).Msg("Failed to mark cancelled record")
		}
		metrics.DownloadsFinishedTotal.WithLabelValues("cancelled").Inc()
		config.GetLogger().Info().Str("id", id).Msg("Queued download cancelled")
		m.emit(models.DownloadProgressEvent{
			ID:       id,
			Status:   models.StatusCancelled,
			Filename: q.filename,
		})
		return true
	}

	if entry, ok := m.active[id]; ok {
		entry.cancel()
		m.mu.Unlock()
		config.GetLogger().Info().Str("id", id).Msg("Cancellation requested for active download")
		return true
	}

	m.mu.Unlock()
	return false
}

// GetActive returns a snapshot of the running transfers, oldest first.
func (m *DownloadManager) GetActive() []models.DownloadSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.DownloadSummary, 0, len(m.active))
	for _, e := range m.active {
		out = append(out, models.DownloadSummary{
			ID:              e.id,
			Filename:        e.filename,
			SourceURL:       e.request.SourceURL,
			SourceKind:      e.request.SourceKind,
			Status:          e.status,
			DownloadedBytes: e.downloadedBytes.Load(),
			TotalBytes:      e.totalBytes.Load(),
			StartedAt:       e.startedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// GetQueued returns the waiting downloads in queue order.
func (m *DownloadManager) GetQueued() []models.QueuedItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.QueuedItem, 0, len(m.queue))
	for _, q := range m.queue {
		out = append(out, models.QueuedItem{ID: q.id, Filename: q.filename})
	}
	return out
}

// Shutdown cancels every running transfer and waits for their cleanup paths
// to finish, or for ctx to expire. Queued items are left as-is; the startup
// interruption sweep settles their records on the next run.
func (m *DownloadManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, entry := range m.active {
		entry.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setStatus flips an active entry's in-memory status under the manager lock.
func (m *DownloadManager) setStatus(entry *activeDownload, status models.DownloadStatus) {
	m.mu.Lock()
	entry.status = status
	m.mu.Unlock()
}

// updateGaugesLocked refreshes the queue depth gauges. Callers hold m.mu.
func (m *DownloadManager) updateGaugesLocked() {
	metrics.ActiveDownloads.Set(float64(len(m.active)))
	metrics.QueuedDownloads.Set(float64(len(m.queue)))
}
