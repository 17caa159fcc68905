// Package api exposes the download manager over a local REST surface:
// submission, listing, cancellation and a live progress event stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/manager"
	"github.com/magicianjarden/audiio-official-sub003/internal/store"
)

const jsonContentType = "application/json"

const (
	apiV1Prefix   = "/api/v1"
	healthPath    = apiV1Prefix + "/health"
	downloadsPath = apiV1Prefix + "/downloads"
	eventsPath    = downloadsPath + "/events"
)

// Server runs the downloader REST API.
type Server struct {
	manager *manager.DownloadManager
	store   store.Store
	srv     *http.Server
}

// NewServer wires the API routes. listenAddr is a host:port string.
func NewServer(m *manager.DownloadManager, st store.Store, listenAddr string) *Server {
	s := &Server{manager: m, store: st}
	mux := http.NewServeMux()

	mux.HandleFunc(healthPath, s.chain(s.healthHandler))
	mux.HandleFunc(downloadsPath, s.chain(s.downloadsHandler))
	mux.HandleFunc(eventsPath, s.chain(s.eventsHandler))
	mux.HandleFunc(downloadsPath+"/", s.chain(s.downloadByIDHandler))

	s.srv = &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// chain stamps a request id and logs the request before dispatch.
func (s *Server) chain(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		logger := config.GetLogger()
		logger.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("API request")

		h(w, r)
	}
}

// Start listens and serves. Blocks until Shutdown is called.
func (s *Server) Start() error {
	config.GetLogger().Info().Str("address", s.srv.Addr).Msg("Starting API server")
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		config.GetLogger().Warn().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ListenAddr formats the configured API address.
func ListenAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
}
