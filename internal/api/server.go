// Package api exposes the read-only HTTP interface over committed emblem
// records.
package api

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
	"github.com/JakeFAU/emblem-crawler/internal/metrics"
)

// Config controls the HTTP server surface.
type Config struct {
	Addr            string        `mapstructure:"addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	APIKey          string        `mapstructure:"api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Server wires HTTP handlers to the record store. All endpoints are
// read-only; mutation happens only through the crawl pipeline.
type Server struct {
	router chi.Router
	store  emblem.Store
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store emblem.Store, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/records", s.listRecords)
		r.Get("/records/{entity_id}", s.getRecord)
		r.Get("/summary", s.summary)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only downstream; a ledger read proves it answers.
	if _, err := s.store.Records(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Records(r.Context())
	if err != nil {
		s.logger.Error("list records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := records[:0]
		for _, rec := range records {
			if string(rec.Status) == status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	sort.Slice(records, func(i, j int) bool { return records[i].EntityID < records[j].EntityID })
	if records == nil {
		records = []emblem.EmblemRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entity_id")
	rec, err := s.store.Get(r.Context(), entityID)
	if err != nil {
		if errors.Is(err, emblem.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error("get record failed",
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Records(r.Context())
	if err != nil {
		s.logger.Error("summary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to summarize records")
		return
	}
	counts := map[emblem.Status]int{}
	for _, rec := range records {
		counts[rec.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":                len(records),
		"downloaded":           counts[emblem.StatusDownloaded],
		"found_not_downloaded": counts[emblem.StatusFoundNotDownloaded],
		"none_found":           counts[emblem.StatusNoneFound],
	})
}
