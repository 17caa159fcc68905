package transfer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/magicianjarden/audiio-official-sub003/internal/apperrors"
	"github.com/magicianjarden/audiio-official-sub003/internal/client"
	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/library"
)

// TempSuffix is appended to the final path while bytes are still arriving.
// Only a complete payload is ever renamed to the final path itself.
const TempSuffix = ".tmp"

var (
	errInsufficientSpace = errors.New("not enough free space for the payload")
	errEmptyAnswer       = errors.New("origin answered with no payload bytes")
)

// ProgressFunc receives a fresh sample every time bytes land on disk.
type ProgressFunc func(Progress)

// Result describes a finished transfer.
type Result struct {
	BytesWritten int64
	TotalBytes   int64
}

// Engine drives one transfer end to end: it probes the payload length,
// pulls the bytes chunked or whole-body, writes them to a temp file and
// renames it into place on success. Failure and cancellation leave neither
// the temp nor the final file behind.
type Engine struct {
	client     client.Client
	fetcher    *client.ChunkFetcher
	chunkSize  int64
	maxRetries int
}

// NewEngine creates an engine using the configured chunk size and retry
// limit, falling back to the defaults when unset.
func NewEngine(c client.Client, fetcher *client.ChunkFetcher, cfg *config.Config) *Engine {
	chunkSize := cfg.Downloads.ChunkSize
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}
	maxRetries := cfg.Downloads.MaxRetries
	if maxRetries <= 0 {
		maxRetries = config.DefaultMaxRetries
	}
	return &Engine{
		client:     c,
		fetcher:    fetcher,
		chunkSize:  chunkSize,
		maxRetries: maxRetries,
	}
}

// Download pulls sourceURL into finalPath. A positive HEAD-probed length
// selects the chunked strategy; anything else falls back to whole-body
// streaming. The returned Result reports what landed on disk.
func (e *Engine) Download(ctx context.Context, sourceURL, finalPath string, onProgress ProgressFunc) (*Result, error) {
	logger := config.GetLogger()

	totalBytes, probeErr := e.client.ProbeLength(ctx, sourceURL)
	if probeErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Debug().Err(probeErr).Str("url", sourceURL).Msg("Length probe failed, streaming whole body")
		totalBytes = 0
	}

	if totalBytes > 0 && !library.HasEnoughSpace(filepath.Dir(finalPath), totalBytes) {
		return nil, apperrors.NewFilesystemError("reserve", finalPath, errInsufficientSpace)
	}

	tmpPath := finalPath + TempSuffix
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, apperrors.NewFilesystemError("create", tmpPath, err)
	}

	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		_ = file.Close()
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn().Err(rmErr).Str("path", tmpPath).Msg("Failed to remove temp file")
		}
	}()

	var written int64
	if totalBytes > 0 {
		written, err = e.downloadChunked(ctx, sourceURL, file, totalBytes, onProgress)
	} else {
		written, totalBytes, err = e.downloadWholeBody(ctx, sourceURL, file, onProgress)
	}
	if err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, apperrors.NewFilesystemError("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, apperrors.NewFilesystemError("rename", finalPath, err)
	}
	succeeded = true

	return &Result{BytesWritten: written, TotalBytes: totalBytes}, nil
}

// downloadChunked advances through the payload in fixed ranges, appending
// each chunk at the current offset. The offset only ever moves forward; an
// origin that ignores Range and streams from byte zero has the already-held
// prefix discarded so bytes are never double-counted or misplaced.
func (e *Engine) downloadChunked(ctx context.Context, sourceURL string, file *os.File, totalBytes int64, onProgress ProgressFunc) (int64, error) {
	started := time.Now()
	var written int64
	zeroProgressStrikes := 0

	for written < totalBytes {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		end := written + e.chunkSize - 1
		if end > totalBytes-1 {
			end = totalBytes - 1
		}

		chunk, err := e.fetcher.FetchChunk(ctx, sourceURL, written, end)
		if err != nil {
			return written, err
		}

		var n int64
		if chunk.Stream != nil {
			n, err = e.absorbFullEntity(sourceURL, chunk.Stream, file, written, totalBytes, started, onProgress)
		} else {
			n, err = writeChunk(file, chunk.Data, written, totalBytes, started, onProgress)
		}
		written += n

		// A dropped live stream is re-requested at the new offset. An
		// attempt that moved nothing forward burns a strike so a hopeless
		// origin cannot loop forever.
		if err != nil && !errors.Is(err, &apperrors.ErrTransient{}) {
			return written, err
		}
		if n == 0 {
			zeroProgressStrikes++
			if zeroProgressStrikes > e.maxRetries {
				if err == nil {
					err = apperrors.NewTransientError(sourceURL, errEmptyAnswer)
				}
				return written, err
			}
			continue
		}
		zeroProgressStrikes = 0
	}

	return written, nil
}

// absorbFullEntity handles a 200 answer to a ranged request: the origin is
// sending the entity from byte zero, so the prefix already on disk is
// discarded from the stream and the remainder is written at the current
// offset.
func (e *Engine) absorbFullEntity(sourceURL string, stream io.ReadCloser, file *os.File, offset, totalBytes int64, started time.Time, onProgress ProgressFunc) (int64, error) {
	defer stream.Close()

	if offset > 0 {
		if _, err := io.CopyN(io.Discard, stream, offset); err != nil {
			return 0, classifyCopyError(sourceURL, err)
		}
	}

	writer := &progressWriter{
		file:       file,
		base:       offset,
		totalBytes: totalBytes,
		started:    started,
		onProgress: onProgress,
	}
	n, err := io.Copy(writer, stream)
	if err != nil {
		return n, classifyCopyError(sourceURL, err)
	}
	return n, nil
}

// downloadWholeBody streams the full entity in one GET. Percent falls back
// to the GET's own declared length; with none, samples carry byte counts
// only. A failure mid-body is terminal: restarting from zero would move the
// byte count backwards.
func (e *Engine) downloadWholeBody(ctx context.Context, sourceURL string, file *os.File, onProgress ProgressFunc) (int64, int64, error) {
	stream, err := e.fetcher.OpenStream(ctx, sourceURL)
	if err != nil {
		return 0, 0, err
	}
	defer stream.Body.Close()

	declared := stream.ContentLength

	writer := &progressWriter{
		file:       file,
		totalBytes: declared,
		started:    time.Now(),
		onProgress: onProgress,
	}
	written, err := io.Copy(writer, stream.Body)
	if err != nil {
		return written, declared, classifyCopyError(sourceURL, err)
	}
	if declared <= 0 {
		declared = written
	}
	return written, declared, nil
}

func writeChunk(file *os.File, data []byte, offset, totalBytes int64, started time.Time, onProgress ProgressFunc) (int64, error) {
	n, err := file.Write(data)
	if n > 0 && onProgress != nil {
		onProgress(Compute(offset+int64(n), totalBytes, time.Since(started)))
	}
	if err != nil {
		return int64(n), apperrors.NewFilesystemError("write", file.Name(), err)
	}
	return int64(n), nil
}

// progressWriter writes to the output file, tracking the cumulative
// transfer position and emitting a sample after every write that lands
// bytes.
type progressWriter struct {
	file       *os.File
	base       int64 // bytes already on disk before this copy
	copied     int64
	totalBytes int64
	started    time.Time
	onProgress ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	if n > 0 {
		w.copied += int64(n)
		if w.onProgress != nil {
			w.onProgress(Compute(w.base+w.copied, w.totalBytes, time.Since(w.started)))
		}
	}
	if err != nil {
		return n, apperrors.NewFilesystemError("write", w.file.Name(), err)
	}
	return n, nil
}

// classifyCopyError types a failure surfaced by a body copy. Stalls and
// write failures arrive already typed, cancellation stays raw, and anything
// else from the read side is a transient network failure.
func classifyCopyError(sourceURL string, err error) error {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, &apperrors.ErrTransient{}) ||
		errors.Is(err, &apperrors.ErrProtocol{}) ||
		errors.Is(err, &apperrors.ErrFilesystem{}) {
		return err
	}
	return apperrors.NewTransientError(sourceURL, err)
}
