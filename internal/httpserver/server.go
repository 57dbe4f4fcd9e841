package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/ILLUVRSE/outfit-review/internal/auth"
	"github.com/ILLUVRSE/outfit-review/internal/config"
	"github.com/ILLUVRSE/outfit-review/internal/export"
	"github.com/ILLUVRSE/outfit-review/internal/ledger"
	"github.com/ILLUVRSE/outfit-review/internal/models"
	"github.com/ILLUVRSE/outfit-review/internal/service"
)

type Server struct {
	cfg      config.Config
	service  *service.Service
	exporter *export.Exporter
	store    ledger.Store
	verifier *auth.Verifier
}

// New builds the HTTP server. verifier may be nil, in which case the API is
// open.
func New(cfg config.Config, svc *service.Service, exporter *export.Exporter, store ledger.Store, verifier *auth.Verifier) *Server {
	return &Server{cfg: cfg, service: svc, exporter: exporter, store: store, verifier: verifier}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withLogging)
	r.Use(middleware.Recoverer)
	r.Use(withCORS(s.cfg.AllowedOrigins))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.verifier != nil {
			r.Use(s.requireReviewer)
		}
		r.Get("/combination", s.handleCombination)
		r.Post("/decision", s.handleDecision)
		r.Get("/download/processed", s.handleDownload(ledger.ProcessedFileName, s.exporter.ExportHistory))
		r.Get("/download/accepted", s.handleDownload(ledger.AcceptedFileName, s.exporter.ExportAccepted))
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusNotFound, "API endpoint not found")
		})
	})

	if s.cfg.AssetDir != "" && s.cfg.AssetBucket == "" {
		r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(s.cfg.AssetDir))))
	}
	if s.cfg.UIDir != "" {
		r.NotFound(spaHandler(s.cfg.UIDir))
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.store.Ping(ctx); err != nil {
		status["ok"] = false
		status["ledger"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleCombination(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.Next(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type decisionRequest struct {
	CurrentCombination models.Combination `json:"currentCombination"`
	Decisions          map[string]string  `json:"decisions"`
	Decision           string             `json:"decision"`
}

// decisionSet accepts either per-category decisions or a single decision
// applied to every present category.
func (req decisionRequest) decisionSet() (models.DecisionSet, error) {
	if len(req.Decisions) == 0 && req.Decision != "" {
		return models.UniformDecisions(req.CurrentCombination, models.Decision(req.Decision)), nil
	}
	out := make(models.DecisionSet, len(req.Decisions))
	for k, v := range req.Decisions {
		cat, ok := models.ParseCategory(k)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", service.ErrIncompleteDecision, k)
		}
		out[cat] = models.Decision(v)
	}
	return out, nil
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	decisions, err := req.decisionSet()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	next, err := s.service.Submit(r.Context(), service.SubmitRequest{
		Combination: req.CurrentCombination,
		Decisions:   decisions,
		Reviewer:    auth.ReviewerFromContext(r.Context()),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, next)
}

func (s *Server) handleDownload(filename string, render func(context.Context) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := render(r.Context())
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func (s *Server) requireReviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		reviewer, err := s.verifier.VerifyRequest(r)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithReviewer(r.Context(), reviewer)))
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrIncompleteDecision):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, export.ErrExportUnavailable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
	}
	respondError(w, status, err.Error())
}

// spaHandler serves files from dir and falls back to index.html for client
// side routes.
func spaHandler(dir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			respondError(w, http.StatusNotFound, "API endpoint not found")
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if r.URL.Path != "/" {
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))); err != nil {
				r.URL.Path = "/"
			}
		}
		fileServer.ServeHTTP(w, r)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
