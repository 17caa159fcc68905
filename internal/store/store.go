package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/magicianjarden/audiio-official-sub003/internal/apperrors"
	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/models"
)

// interruptedMessage is recorded on downloads found mid-flight at startup.
const interruptedMessage = "interrupted by process shutdown"

// Store is the durable record of every download. Records are created at
// submission, updated in place on every state transition, and never deleted
// by this subsystem.
type Store interface {
	// CreateDownloadRecord inserts a new record with status queued.
	CreateDownloadRecord(ctx context.Context, id, sourceURL string, kind models.MediaKind, filename, folderID string) error

	// UpdateDownloadRecord applies the non-nil fields of update. Updating an
	// unknown id returns *apperrors.ErrNotFound.
	UpdateDownloadRecord(ctx context.Context, id string, update models.RecordUpdate) error

	// GetDownloadRecord returns one record, or *apperrors.ErrNotFound.
	GetDownloadRecord(ctx context.Context, id string) (*models.DownloadRecord, error)

	// ListDownloadRecords returns every record, most recent first.
	ListDownloadRecords(ctx context.Context) ([]models.DownloadRecord, error)

	// MarkInterrupted fails every record a previous process left in a
	// non-terminal state and returns how many were touched. A crash loses
	// in-flight progress; the records must not stay queued or downloading
	// forever.
	MarkInterrupted(ctx context.Context) (int64, error)

	// Close releases the underlying database handle.
	Close() error
}

// sqliteStore implements Store on a SQLite database file.
type sqliteStore struct {
	db *sql.DB
}

// New opens (creating if needed) the download database at the configured
// path and ensures the schema exists.
func New(cfg *config.Config) (Store, error) {
	path := cfg.Database.Path
	if path == "" {
		path = "downloads.db"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.NewFilesystemError("mkdir", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time; a single pooled connection keeps
	// concurrent record updates from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS downloads (
            id TEXT PRIMARY KEY,
            folder_id TEXT NOT NULL DEFAULT '',
            source_url TEXT NOT NULL,
            source_kind TEXT NOT NULL,
            filename TEXT NOT NULL,
            status TEXT NOT NULL,
            progress_percent INTEGER NOT NULL DEFAULT 0 CHECK (progress_percent BETWEEN 0 AND 100),
            total_bytes INTEGER NOT NULL DEFAULT 0,
            downloaded_bytes INTEGER NOT NULL DEFAULT 0,
            file_path TEXT NOT NULL DEFAULT '',
            error TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL,
            completed_at TIMESTAMP
        );

        CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
    `)
	if err != nil {
		return fmt.Errorf("error creating tables: %w", err)
	}
	return nil
}

func (s *sqliteStore) CreateDownloadRecord(ctx context.Context, id, sourceURL string, kind models.MediaKind, filename, folderID string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO downloads (id, folder_id, source_url, source_kind, filename, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, id, folderID, sourceURL, kind.String(), filename, string(models.StatusQueued), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create download record: %w", err)
	}
	return nil
}

func (s *sqliteStore) UpdateDownloadRecord(ctx context.Context, id string, update models.RecordUpdate) error {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.ProgressPercent != nil {
		sets = append(sets, "progress_percent = ?")
		args = append(args, *update.ProgressPercent)
	}
	if update.TotalBytes != nil {
		sets = append(sets, "total_bytes = ?")
		args = append(args, *update.TotalBytes)
	}
	if update.DownloadedBytes != nil {
		sets = append(sets, "downloaded_bytes = ?")
		args = append(args, *update.DownloadedBytes)
	}
	if update.FilePath != nil {
		sets = append(sets, "file_path = ?")
		args = append(args, *update.FilePath)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, update.CompletedAt.UTC())
	}

	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, "UPDATE downloads SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update download record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return apperrors.NewDownloadNotFoundError(id)
	}
	return nil
}

func (s *sqliteStore) GetDownloadRecord(ctx context.Context, id string) (*models.DownloadRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, folder_id, source_url, source_kind, filename, status,
               progress_percent, total_bytes, downloaded_bytes, file_path,
               error, created_at, completed_at
        FROM downloads WHERE id = ?
    `, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewDownloadNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download record: %w", err)
	}
	return record, nil
}

func (s *sqliteStore) ListDownloadRecords(ctx context.Context) ([]models.DownloadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, folder_id, source_url, source_kind, filename, status,
               progress_percent, total_bytes, downloaded_bytes, file_path,
               error, created_at, completed_at
        FROM downloads ORDER BY rowid DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to list download records: %w", err)
	}
	defer rows.Close()

	var records []models.DownloadRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list download records: %w", err)
	}
	return records, nil
}

func (s *sqliteStore) MarkInterrupted(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
        UPDATE downloads SET status = ?, error = ?
        WHERE status IN (?, ?, ?)
    `, string(models.StatusFailed), interruptedMessage,
		string(models.StatusQueued), string(models.StatusDownloading), string(models.StatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted downloads: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.DownloadRecord, error) {
	var (
		record      models.DownloadRecord
		kind        string
		status      string
		completedAt sql.NullTime
	)
	err := row.Scan(
		&record.ID, &record.FolderID, &record.SourceURL, &kind, &record.Filename,
		&status, &record.ProgressPercent, &record.TotalBytes, &record.DownloadedBytes,
		&record.FilePath, &record.Error, &record.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	record.SourceKind = models.ParseMediaKind(kind)
	record.Status = models.DownloadStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		record.CompletedAt = &t
	}
	return &record, nil
}
