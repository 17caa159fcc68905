package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/magicianjarden/audiio-official-sub003/internal/apperrors"
	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/models"
)

// maxSubmitBodyBytes bounds POST /api/v1/downloads bodies.
const maxSubmitBodyBytes = 1024 * 1024 // 1 MiB

// sseEventBuffer is the per-stream event buffer; a consumer that stays this
// far behind starts losing events.
const sseEventBuffer = 256

// sseHeartbeat keeps idle event streams alive through proxies.
const sseHeartbeat = 15 * time.Second

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) downloadsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listDownloads(w, r)
	case http.MethodPost:
		s.submitDownload(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// listDownloads answers GET /api/v1/downloads with the live queue state and
// the persisted records.
func (s *Server) listDownloads(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListDownloadRecords(r.Context())
	if err != nil {
		logger := config.GetLogger()
		logger.Error().Err(err).Msg("Failed to list download records")
		writeError(w, http.StatusInternalServerError, "failed to list downloads")
		return
	}

	writeJSON(w, http.StatusOK, DownloadsSnapshot{
		Active:  s.manager.GetActive(),
		Queued:  s.manager.GetQueued(),
		Records: records,
	})
}

// submitDownload answers POST /api/v1/downloads. The body is a
// models.DownloadRequest; the answer is the manager's SubmitResult.
func (s *Server) submitDownload(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes)
	var req models.DownloadRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := s.manager.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, &apperrors.ErrValidation{}) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger := config.GetLogger()
		logger.Error().Err(err).Msg("Submission failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusCreated
	if result.AlreadyQueued || result.AlreadyExists {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// downloadByIDHandler dispatches GET and DELETE /api/v1/downloads/{id}.
func (s *Server) downloadByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := path.Base(r.URL.Path)
	if id == "" || id == "downloads" {
		writeError(w, http.StatusBadRequest, "missing download id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := s.store.GetDownloadRecord(r.Context(), id)
		if err != nil {
			if errors.Is(err, &apperrors.ErrNotFound{}) {
				writeError(w, http.StatusNotFound, "download not found")
				return
			}
			logger := config.GetLogger()
			logger.Error().Err(err).Str("id", id).Msg("Failed to load download record")
			writeError(w, http.StatusInternalServerError, "failed to load download")
			return
		}
		writeJSON(w, http.StatusOK, record)

	case http.MethodDelete:
		if !s.manager.Cancel(id) {
			writeError(w, http.StatusNotFound, "download not found or already finished")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// eventsHandler answers GET /api/v1/downloads/events with a server-sent
// event stream of progress events, one JSON object per data frame.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	token, events := s.manager.Subscribe(sseEventBuffer)
	defer s.manager.Unsubscribe(token)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				logger := config.GetLogger()
				logger.Warn().Err(err).Msg("Failed to encode progress event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
