// Package web serves the wikiflash JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conorfennell/wikiflash/internal/content"
	"github.com/conorfennell/wikiflash/internal/domain"
	"github.com/conorfennell/wikiflash/internal/importer"
	"github.com/conorfennell/wikiflash/internal/session"
	"github.com/conorfennell/wikiflash/internal/storage"
)

// ContentSource resolves a topic or article URL to reference text.
type ContentSource interface {
	Search(ctx context.Context, topic string) ([]content.SearchResult, error)
	Fetch(ctx context.Context, input string) (*content.Article, error)
}

// CardGenerator turns reference text into question/answer pairs.
type CardGenerator interface {
	Generate(ctx context.Context, text, topic string, count int) ([]domain.QA, error)
}

// DeckImporter creates decks from markdown notes.
type DeckImporter interface {
	CreateDeck(ctx context.Context, sessionID, name, source string, today domain.Date) (*domain.Deck, importer.Result, error)
}

// Deps are the collaborators the server is built from.
type Deps struct {
	DB           *storage.DB
	Content      ContentSource
	Generator    CardGenerator
	Importer     DeckImporter
	NewCardLimit int
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db        *storage.DB
	content   ContentSource
	generator CardGenerator
	importer  DeckImporter
	composer  *session.Composer
	studies   *registry
	validate  *validator.Validate
	router    *http.ServeMux
	today     func() domain.Date
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) *Server {
	s := &Server{
		db:        deps.DB,
		content:   deps.Content,
		generator: deps.Generator,
		importer:  deps.Importer,
		composer:  session.NewComposer(deps.DB, deps.NewCardLimit),
		studies:   newRegistry(studyTTL),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		router:    http.NewServeMux(),
		today:     domain.Today,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.router.ServeHTTP(rec, r)
	slog.Debug("request served",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("POST /api/sessions", s.handleCreateSession())
	s.router.HandleFunc("GET /api/sessions/{id}", s.handleGetSession())

	s.router.HandleFunc("GET /api/search", s.handleSearch())
	s.router.HandleFunc("GET /api/decks", s.handleListDecks())
	s.router.HandleFunc("POST /api/decks", s.handleCreateDeck())
	s.router.HandleFunc("POST /api/decks/import", s.handleImportDeck())
	s.router.HandleFunc("GET /api/decks/{id}", s.handleGetDeck())
	s.router.HandleFunc("PATCH /api/decks/{id}", s.handleRenameDeck())
	s.router.HandleFunc("DELETE /api/decks/{id}", s.handleDeleteDeck())
	s.router.HandleFunc("PATCH /api/cards/{id}", s.handleUpdateCard())
	s.router.HandleFunc("DELETE /api/cards/{id}", s.handleDeleteCard())

	s.router.HandleFunc("POST /api/decks/{id}/study", s.handleStartStudy())
	s.router.HandleFunc("GET /api/study/{id}", s.handleGetStudy())
	s.router.HandleFunc("POST /api/study/{id}/rate", s.handleRate())
	s.router.HandleFunc("POST /api/study/{id}/finish", s.handleFinishStudy())
	s.router.HandleFunc("DELETE /api/study/{id}", s.handleExitStudy())

	s.router.Handle("GET /metrics", promhttp.Handler())
	s.router.HandleFunc("GET /healthz", s.handleHealth())
}

// handleHealth reports whether the database is reachable.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleCreateSession starts a new anonymous session.
func (s *Server) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.db.CreateSession(r.Context())
		if err != nil {
			s.internalError(w, "failed to create session", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

// handleGetSession confirms an anonymous session exists.
func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ok, err := s.db.SessionExists(r.Context(), id)
		if err != nil {
			s.internalError(w, "failed to look up session", err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "unknown session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal", msg)
}

// notFoundOr writes 404 for missing rows and 500 for anything else.
func (s *Server) notFoundOr(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	s.internalError(w, msg, err)
}

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
