package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/magicianjarden/audiio-official-sub003/internal/apperrors"
	"github.com/magicianjarden/audiio-official-sub003/internal/client"
	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/library"
	"github.com/magicianjarden/audiio-official-sub003/internal/models"
	"github.com/magicianjarden/audiio-official-sub003/internal/store"
	"github.com/magicianjarden/audiio-official-sub003/internal/tags"
	"github.com/magicianjarden/audiio-official-sub003/internal/testutil"
	"github.com/magicianjarden/audiio-official-sub003/internal/transfer"
)

const eventWait = 15 * time.Second

type fixture struct {
	manager *DownloadManager
	store   store.Store
	dir     string
}

type fixtureOptions struct {
	chunkSize     int64
	maxConcurrent int
	idleTimeout   string
	embedder      func(c client.Client) *tags.Embedder
}

func newTestManager(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		ClientTimeout: "10s",
		UserAgent:     config.DefaultUserAgent,
	}
	cfg.Downloads.ChunkSize = opts.chunkSize
	cfg.Downloads.MaxConcurrent = opts.maxConcurrent
	cfg.Downloads.MaxRetries = 3
	cfg.Downloads.RetryBackoff = "1ms"
	cfg.Downloads.IdleTimeout = opts.idleTimeout
	cfg.Downloads.ProgressStep = 5
	cfg.Downloads.DefaultDir = dir
	cfg.Database.Path = filepath.Join(t.TempDir(), "downloads.db")

	st, err := store.New(cfg)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	c := client.NewClient(cfg)
	t.Cleanup(func() {
		_ = c.Close()
	})
	fetcher := client.NewChunkFetcher(c, cfg.Downloads.MaxRetries, time.Millisecond)
	engine := transfer.NewEngine(c, fetcher, cfg)

	var embedder *tags.Embedder
	if opts.embedder != nil {
		embedder = opts.embedder(c)
	}

	m := New(cfg, engine, st, library.NewResolver(cfg), embedder)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	return &fixture{manager: m, store: st, dir: dir}
}

func audioRequest(url, stem string) models.DownloadRequest {
	return models.DownloadRequest{
		SourceURL:     url,
		FilenameStem:  stem,
		FileExtension: ".mp3",
		SourceKind:    models.MediaKindAudio,
	}
}

// collectUntilTerminal drains the event channel until id reaches a terminal
// state, returning every event seen for that id.
func collectUntilTerminal(t *testing.T, events <-chan models.DownloadProgressEvent, id string) []models.DownloadProgressEvent {
	t.Helper()

	var seen []models.DownloadProgressEvent
	deadline := time.After(eventWait)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("Event stream closed before a terminal event")
			}
			if ev.ID != id {
				continue
			}
			seen = append(seen, ev)
			if ev.Status.IsTerminal() {
				return seen
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for a terminal event for %s (saw %d events)", id, len(seen))
		}
	}
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func assertNoTransferArtifacts(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read download dir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("Expected no files left behind, found %s", e.Name())
	}
}

func statuses(events []models.DownloadProgressEvent) []models.DownloadStatus {
	var out []models.DownloadStatus
	for _, ev := range events {
		if len(out) == 0 || out[len(out)-1] != ev.Status {
			out = append(out, ev.Status)
		}
	}
	return out
}

func TestManager_ChunkedDownloadLifecycle(t *testing.T) {
	payload := make([]byte, 3000000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	cdn := testutil.NewFakeCDN(payload)
	defer cdn.Close()

	f := newTestManager(t, fixtureOptions{})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	result, err := f.manager.Submit(context.Background(), audioRequest(cdn.URL()+"/track", "Full Track"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.AlreadyQueued || result.AlreadyExists {
		t.Fatalf("Expected a fresh submission, got %+v", result)
	}

	seen := collectUntilTerminal(t, events, result.ID)
	last := seen[len(seen)-1]
	if last.Status != models.StatusCompleted {
		t.Fatalf("Expected completed, got %s (error %q)", last.Status, last.Error)
	}
	if last.ProgressPercent != 100 {
		t.Errorf("Expected terminal progress 100, got %d", last.ProgressPercent)
	}
	if last.FilePath == "" {
		t.Error("Expected the completed event to carry the file path")
	}

	// One probe, exactly one ranged request per 1 MiB chunk.
	if cdn.HeadCount() != 1 {
		t.Errorf("Expected 1 HEAD probe, got %d", cdn.HeadCount())
	}
	wantRanges := []string{"bytes=0-1048575", "bytes=1048576-2097151", "bytes=2097152-2999999"}
	if !reflect.DeepEqual(cdn.RangeHeaders(), wantRanges) {
		t.Errorf("Expected ranges %v, got %v", wantRanges, cdn.RangeHeaders())
	}

	// Payload landed intact at the final path, no temp file left.
	got, err := os.ReadFile(last.FilePath)
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("Expected downloaded bytes to match the payload")
	}
	if _, err := os.Stat(last.FilePath + transfer.TempSuffix); !os.IsNotExist(err) {
		t.Error("Expected the temp file to be gone")
	}

	// Events walk the state machine forward with monotonic byte counts.
	wantStatuses := []models.DownloadStatus{models.StatusQueued, models.StatusDownloading, models.StatusCompleted}
	if !reflect.DeepEqual(statuses(seen), wantStatuses) {
		t.Errorf("Expected status sequence %v, got %v", wantStatuses, statuses(seen))
	}
	var prev int64
	for _, ev := range seen {
		if ev.DownloadedBytes < prev {
			t.Fatalf("Expected monotonic byte counts, got %d after %d", ev.DownloadedBytes, prev)
		}
		prev = ev.DownloadedBytes
	}

	// The persisted record agrees with the terminal event.
	rec, err := f.store.GetDownloadRecord(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if rec.Status != models.StatusCompleted || rec.ProgressPercent != 100 {
		t.Errorf("Expected completed record at 100, got %s at %d", rec.Status, rec.ProgressPercent)
	}
	if rec.TotalBytes != 3000000 || rec.DownloadedBytes != 3000000 {
		t.Errorf("Expected 3000000 bytes recorded, got %d/%d", rec.DownloadedBytes, rec.TotalBytes)
	}
	if rec.FilePath != last.FilePath {
		t.Errorf("Expected record path %q, got %q", last.FilePath, rec.FilePath)
	}
	if rec.CompletedAt == nil {
		t.Error("Expected a completion timestamp")
	}
}

func TestManager_StalledOriginFails(t *testing.T) {
	cdn := testutil.NewFakeCDN(bytes.Repeat([]byte{7}, 4096))
	defer cdn.Close()
	cdn.StallFor = 500 * time.Millisecond
	for seq := 1; seq <= 4; seq++ {
		cdn.StallGet(seq)
	}

	f := newTestManager(t, fixtureOptions{idleTimeout: "50ms"})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	result, err := f.manager.Submit(context.Background(), audioRequest(cdn.URL()+"/stalled", "Stalled"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	seen := collectUntilTerminal(t, events, result.ID)
	last := seen[len(seen)-1]
	if last.Status != models.StatusFailed {
		t.Fatalf("Expected failed, got %s", last.Status)
	}
	if last.Error == "" {
		t.Error("Expected the terminal event to carry an error")
	}

	// Initial attempt plus three retries, all stalled out.
	if cdn.GetCount() != 4 {
		t.Errorf("Expected 4 GET attempts, got %d", cdn.GetCount())
	}

	rec, err := f.store.GetDownloadRecord(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if rec.Status != models.StatusFailed || rec.Error == "" {
		t.Errorf("Expected failed record with error text, got %s %q", rec.Status, rec.Error)
	}

	assertNoTransferArtifacts(t, f.dir)
}

func TestManager_ConcurrencyCap(t *testing.T) {
	payload := bytes.Repeat([]byte{1}, 1024)
	cdn := testutil.NewFakeCDN(payload)
	defer cdn.Close()
	cdn.HoldGets()

	f := newTestManager(t, fixtureOptions{maxConcurrent: 2})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	ids := make([]string, 3)
	for i := range ids {
		result, err := f.manager.Submit(context.Background(), audioRequest(
			fmt.Sprintf("%s/file-%d", cdn.URL(), i), fmt.Sprintf("Track %d", i)))
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		ids[i] = result.ID
	}

	// Two transfers hold slots, the third waits in queue order.
	waitUntil(t, eventWait, "two active downloads", func() bool {
		return len(f.manager.GetActive()) == 2
	})
	queued := f.manager.GetQueued()
	if len(queued) != 1 || queued[0].ID != ids[2] {
		t.Fatalf("Expected the third submission queued, got %+v", queued)
	}

	active := f.manager.GetActive()
	activeIDs := map[string]bool{}
	for _, a := range active {
		activeIDs[a.ID] = true
	}
	if !activeIDs[ids[0]] || !activeIDs[ids[1]] {
		t.Errorf("Expected the first two submissions active, got %v", activeIDs)
	}
	for _, a := range active {
		if a.Status != models.StatusDownloading {
			t.Errorf("Expected downloading status, got %s", a.Status)
		}
		if a.StartedAt.IsZero() {
			t.Error("Expected a start timestamp")
		}
	}

	// The queued record is still queued while it waits.
	rec, err := f.store.GetDownloadRecord(context.Background(), ids[2])
	if err != nil {
		t.Fatalf("Failed to load queued record: %v", err)
	}
	if rec.Status != models.StatusQueued {
		t.Errorf("Expected queued record, got %s", rec.Status)
	}

	cdn.ReleaseGets()
	for _, id := range ids {
		seen := collectUntilTerminal(t, events, id)
		if last := seen[len(seen)-1]; last.Status != models.StatusCompleted {
			t.Errorf("Expected %s completed, got %s (error %q)", id, last.Status, last.Error)
		}
	}
	if remaining := f.manager.GetActive(); len(remaining) != 0 {
		t.Errorf("Expected no active downloads left, got %d", len(remaining))
	}
}

func TestManager_CancelQueued(t *testing.T) {
	cdn := testutil.NewFakeCDN(bytes.Repeat([]byte{2}, 1024))
	defer cdn.Close()
	cdn.HoldGets()

	f := newTestManager(t, fixtureOptions{maxConcurrent: 1})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	first, err := f.manager.Submit(context.Background(), audioRequest(cdn.URL()+"/a", "First"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, err := f.manager.Submit(context.Background(), audioRequest(cdn.URL()+"/b", "Second"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitUntil(t, eventWait, "first download active", func() bool {
		return len(f.manager.GetActive()) == 1
	})

	if !f.manager.Cancel(second.ID) {
		t.Fatal("Expected cancelling a queued download to succeed")
	}
	if len(f.manager.GetQueued()) != 0 {
		t.Error("Expected the queue to be empty after cancel")
	}

	rec, err := f.store.GetDownloadRecord(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if rec.Status != models.StatusCancelled {
		t.Errorf("Expected cancelled record, got %s", rec.Status)
	}

	// The claim is released: the same destination can be submitted again.
	resubmit, err := f.manager.Submit(context.Background(), audioRequest(cdn.URL()+"/b", "Second"))
	if err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	if resubmit.AlreadyQueued || resubmit.AlreadyExists {
		t.Errorf("Expected a fresh submission after cancel, got %+v", resubmit)
	}

	cdn.ReleaseGets()
	for _, id := range []string{first.ID, resubmit.ID} {
		seen := collectUntilTerminal(t, events, id)
		if last := seen[len(seen)-1]; last.Status != models.StatusCompleted {
			t.Errorf("Expected %s completed, got %s", id, last.Status)
		}
	}
}

func TestManager_CancelActive(t *testing.T) {
	cdn := testutil.NewFakeCDN(bytes.Repeat([]byte{3}, 1024))
	defer cdn.Close()
	cdn.HoldGets()

	f := newTestManager(t, fixtureOptions{})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	result, err := f.manager.Submit(context.Background(), audioRequest(cdn.URL()+"/a", "Doomed"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitUntil(t, eventWait, "download active", func() bool {
		return len(f.manager.GetActive()) == 1
	})

	if !f.manager.Cancel(result.ID) {
		t.Fatal("Expected cancelling an active download to succeed")
	}

	seen := collectUntilTerminal(t, events, result.ID)
	if last := seen[len(seen)-1]; last.Status != models.StatusCancelled {
		t.Fatalf("Expected cancelled, got %s", last.Status)
	}

	rec, err := f.store.GetDownloadRecord(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if rec.Status != models.StatusCancelled {
		t.Errorf("Expected cancelled record, got %s", rec.Status)
	}

	// Terminal ids are absorbing.
	waitUntil(t, eventWait, "active set drained", func() bool {
		return len(f.manager.GetActive()) == 0
	})
	if f.manager.Cancel(result.ID) {
		t.Error("Expected cancelling a finished download to report false")
	}

	assertNoTransferArtifacts(t, f.dir)
}

func TestManager_CancelUnknown(t *testing.T) {
	f := newTestManager(t, fixtureOptions{})
	if f.manager.Cancel("no-such-id") {
		t.Error("Expected cancelling an unknown id to report false")
	}
}

func TestManager_IdempotentResubmission(t *testing.T) {
	payload := bytes.Repeat([]byte{4}, 2048)
	cdn := testutil.NewFakeCDN(payload)
	defer cdn.Close()

	f := newTestManager(t, fixtureOptions{})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	req := audioRequest(cdn.URL()+"/track", "Same Song")
	first, err := f.manager.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	collectUntilTerminal(t, events, first.ID)
	getsAfterFirst := cdn.GetCount()

	second, err := f.manager.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	if !second.AlreadyExists {
		t.Fatalf("Expected AlreadyExists on resubmission, got %+v", second)
	}

	// The synthetic completed event arrives without any network activity.
	seen := collectUntilTerminal(t, events, second.ID)
	last := seen[len(seen)-1]
	if last.Status != models.StatusCompleted || last.ProgressPercent != 100 {
		t.Errorf("Expected synthetic completed at 100, got %s at %d", last.Status, last.ProgressPercent)
	}
	if last.FilePath != second.FilePath {
		t.Errorf("Expected event path %q, got %q", second.FilePath, last.FilePath)
	}
	if int64(len(payload)) != last.DownloadedBytes {
		t.Errorf("Expected the on-disk size %d, got %d", len(payload), last.DownloadedBytes)
	}
	if cdn.GetCount() != getsAfterFirst {
		t.Errorf("Expected no further GETs, got %d new", cdn.GetCount()-getsAfterFirst)
	}

	// Only the original submission persisted a record.
	records, err := f.store.ListDownloadRecords(context.Background())
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestManager_ClaimsFoldDuplicateSubmissions(t *testing.T) {
	cdn := testutil.NewFakeCDN(bytes.Repeat([]byte{5}, 1024))
	defer cdn.Close()
	cdn.HoldGets()

	f := newTestManager(t, fixtureOptions{})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	req := audioRequest(cdn.URL()+"/track", "Contested")
	first, err := f.manager.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, err := f.manager.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Duplicate submit failed: %v", err)
	}

	if !second.AlreadyQueued {
		t.Fatalf("Expected AlreadyQueued for a claimed destination, got %+v", second)
	}
	if second.ID != first.ID {
		t.Errorf("Expected the claim owner's id %s, got %s", first.ID, second.ID)
	}

	records, err := f.store.ListDownloadRecords(context.Background())
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected a single record for both submissions, got %d", len(records))
	}

	cdn.ReleaseGets()
	collectUntilTerminal(t, events, first.ID)
}

func TestManager_SubmitValidation(t *testing.T) {
	f := newTestManager(t, fixtureOptions{})

	_, err := f.manager.Submit(context.Background(), models.DownloadRequest{
		SourceURL:     "ftp://example.com/file",
		FilenameStem:  "x",
		FileExtension: ".mp3",
		SourceKind:    models.MediaKindAudio,
	})
	if err == nil {
		t.Fatal("Expected a validation error")
	}
	if !errors.Is(err, &apperrors.ErrValidation{}) {
		t.Errorf("Expected ErrValidation, got %T", err)
	}

	records, listErr := f.store.ListDownloadRecords(context.Background())
	if listErr != nil {
		t.Fatalf("Failed to list records: %v", listErr)
	}
	if len(records) != 0 {
		t.Errorf("Expected no record for a rejected submission, got %d", len(records))
	}
}

type recordingWriter struct {
	paths []string
	tags  []models.TrackTags
}

func (w *recordingWriter) Write(path string, t models.TrackTags, artwork []byte) error {
	w.paths = append(w.paths, path)
	w.tags = append(w.tags, t)
	return nil
}

func TestManager_ProcessingPhase(t *testing.T) {
	cdn := testutil.NewFakeCDN(bytes.Repeat([]byte{6}, 2048))
	defer cdn.Close()

	writer := &recordingWriter{}
	f := newTestManager(t, fixtureOptions{
		embedder: func(c client.Client) *tags.Embedder {
			return tags.NewEmbedder(writer, c, nil)
		},
	})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	req := audioRequest(cdn.URL()+"/track", "Tagged")
	req.Metadata = &models.TrackTags{Title: "Tagged", Artists: []string{"Artist"}}
	result, err := f.manager.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	seen := collectUntilTerminal(t, events, result.ID)
	wantStatuses := []models.DownloadStatus{
		models.StatusQueued, models.StatusDownloading, models.StatusProcessing, models.StatusCompleted,
	}
	if !reflect.DeepEqual(statuses(seen), wantStatuses) {
		t.Fatalf("Expected status sequence %v, got %v", wantStatuses, statuses(seen))
	}

	if len(writer.paths) != 1 {
		t.Fatalf("Expected 1 tag write, got %d", len(writer.paths))
	}
	if writer.paths[0] != seen[len(seen)-1].FilePath {
		t.Errorf("Expected tags written to %q, got %q", seen[len(seen)-1].FilePath, writer.paths[0])
	}
	if writer.tags[0].Title != "Tagged" {
		t.Errorf("Expected the request metadata, got %+v", writer.tags[0])
	}
}

func TestManager_NoProcessingForUnembeddableExtension(t *testing.T) {
	cdn := testutil.NewFakeCDN(bytes.Repeat([]byte{8}, 1024))
	defer cdn.Close()

	writer := &recordingWriter{}
	f := newTestManager(t, fixtureOptions{
		embedder: func(c client.Client) *tags.Embedder {
			return tags.NewEmbedder(writer, c, nil)
		},
	})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	req := models.DownloadRequest{
		SourceURL:     cdn.URL() + "/clip",
		FilenameStem:  "Clip",
		FileExtension: ".mp4",
		SourceKind:    models.MediaKindVideo,
		Metadata:      &models.TrackTags{Title: "Clip"},
	}
	result, err := f.manager.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	seen := collectUntilTerminal(t, events, result.ID)
	for _, ev := range seen {
		if ev.Status == models.StatusProcessing {
			t.Fatal("Expected no processing phase for .mp4")
		}
	}
	if len(writer.paths) != 0 {
		t.Errorf("Expected no tag writes, got %d", len(writer.paths))
	}
}

func TestManager_ProtocolFailureSettlesRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestManager(t, fixtureOptions{})
	token, events := f.manager.Subscribe(256)
	defer f.manager.Unsubscribe(token)

	result, err := f.manager.Submit(context.Background(), audioRequest(server.URL+"/gone", "Missing"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	seen := collectUntilTerminal(t, events, result.ID)
	last := seen[len(seen)-1]
	if last.Status != models.StatusFailed {
		t.Fatalf("Expected failed, got %s", last.Status)
	}
	if last.Error == "" {
		t.Error("Expected the terminal event to carry an error")
	}

	rec, err := f.store.GetDownloadRecord(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if rec.Status != models.StatusFailed || rec.Error == "" {
		t.Errorf("Expected failed record with error text, got %s %q", rec.Status, rec.Error)
	}

	assertNoTransferArtifacts(t, f.dir)
}
