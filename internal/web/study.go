package web

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/conorfennell/wikiflash/internal/domain"
	"github.com/conorfennell/wikiflash/internal/session"
	"github.com/conorfennell/wikiflash/internal/srs"
)

// studyTTL bounds how long an abandoned study session stays in memory.
const studyTTL = 12 * time.Hour

// registry holds the in-progress study sessions by id.
type registry struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]registryEntry
}

type registryEntry struct {
	session *session.Session
	touched time.Time
}

func newRegistry(ttl time.Duration) *registry {
	return &registry{ttl: ttl, now: time.Now, entries: make(map[string]registryEntry)}
}

// put stores sess and evicts entries idle for longer than the ttl.
func (r *registry) put(sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, e := range r.entries {
		if now.Sub(e.touched) > r.ttl {
			delete(r.entries, id)
		}
	}
	r.entries[sess.ID()] = registryEntry{session: sess, touched: now}
}

func (r *registry) get(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.touched = r.now()
	r.entries[id] = e
	return e.session, true
}

func (r *registry) remove(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	return e.session, ok
}

type studyResponse struct {
	StudyID   string            `json:"study_id"`
	DeckID    string            `json:"deck_id"`
	Total     int               `json:"total"`
	Reviews   int               `json:"reviews"`
	Position  int               `json:"position"`
	Remaining int               `json:"remaining"`
	Card      *domain.Flashcard `json:"card,omitempty"`
	Report    session.Report    `json:"report"`
}

type rateRequest struct {
	Rating srs.Rating `json:"rating" validate:"required"`
}

type rateResponse struct {
	session.Outcome
	Report      session.Report `json:"report"`
	Error       string         `json:"error,omitempty"`
	FinishError string         `json:"finish_error,omitempty"`
}

type nothingDueResponse struct {
	Error      string       `json:"error"`
	Message    string       `json:"message"`
	NextReview *domain.Date `json:"next_review,omitempty"`
	DaysUntil  int          `json:"days_until,omitempty"`
}

func newStudyResponse(sess *session.Session) studyResponse {
	resp := studyResponse{
		StudyID:   sess.ID(),
		DeckID:    sess.DeckID(),
		Total:     sess.Len(),
		Reviews:   sess.Reviews(),
		Position:  sess.Position(),
		Remaining: sess.Remaining(),
		Report:    sess.Report(),
	}
	if card, ok := sess.Current(); ok {
		resp.Card = &card
	}
	return resp
}

// handleStartStudy composes a study session for a deck.
func (s *Server) handleStartStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deckID := r.PathValue("id")
		today := s.today()
		if _, err := s.db.GetDeck(r.Context(), deckID, today); err != nil {
			s.notFoundOr(w, "failed to get deck", err)
			return
		}

		sess, err := s.composer.Compose(r.Context(), deckID, today)
		var nothingDue *session.NothingDueError
		switch {
		case errors.As(err, &nothingDue):
			resp := nothingDueResponse{Error: "deck_empty", Message: err.Error()}
			if nothingDue.HasUpcoming {
				resp.Error = "nothing_due"
				resp.NextReview = &nothingDue.Next
				resp.DaysUntil = today.DaysUntil(nothingDue.Next)
			}
			writeJSON(w, http.StatusConflict, resp)
			return
		case errors.Is(err, session.ErrNothingToStudy):
			writeError(w, http.StatusConflict, "nothing_to_study", err.Error())
			return
		case err != nil:
			s.internalError(w, "failed to compose study session", err)
			return
		}

		s.studies.put(sess)
		slog.Info("study session started",
			"session_id", sess.ID(),
			"deck_id", deckID,
			"cards", sess.Len(),
			"reviews", sess.Reviews(),
		)
		writeJSON(w, http.StatusCreated, newStudyResponse(sess))
	}
}

func (s *Server) lookupStudy(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.studies.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown study session")
	}
	return sess, ok
}

// handleGetStudy returns the current card and progress.
func (s *Server) handleGetStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.lookupStudy(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, newStudyResponse(sess))
	}
}

// handleRate applies a rating to the current card.
func (s *Server) handleRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.lookupStudy(w, r)
		if !ok {
			return
		}
		var req rateRequest
		if !s.decode(w, r, &req) {
			return
		}

		out, err := sess.Rate(r.Context(), req.Rating, s.today())
		switch {
		case err == nil:
		case errors.Is(err, session.ErrCardDeleted):
			// The card is gone; the session already moved past it.
			writeJSON(w, http.StatusConflict, rateResponse{Outcome: out, Report: sess.Report(), Error: "card_deleted"})
			return
		case out.Done:
			// Ratings are saved; only the last-studied time is missing.
			writeJSON(w, http.StatusOK, rateResponse{Outcome: out, Report: sess.Report(), FinishError: err.Error()})
			return
		case errors.Is(err, srs.ErrUnknownRating):
			writeError(w, http.StatusBadRequest, "invalid_rating", err.Error())
			return
		case errors.Is(err, session.ErrSessionClosed):
			writeError(w, http.StatusGone, "session_closed", err.Error())
			return
		case errors.Is(err, session.ErrSessionFinished):
			writeError(w, http.StatusConflict, "session_finished", err.Error())
			return
		default:
			slog.Error("failed to save rating", "study_id", sess.ID(), "error", err)
			writeError(w, http.StatusServiceUnavailable, "save_failed", "rating was not saved, try again")
			return
		}
		writeJSON(w, http.StatusOK, rateResponse{Outcome: out, Report: sess.Report()})
	}
}

// handleFinishStudy retries recording the end of a fully rated session.
func (s *Server) handleFinishStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.lookupStudy(w, r)
		if !ok {
			return
		}
		report, err := sess.Finish(r.Context())
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, report)
		case errors.Is(err, session.ErrSessionClosed):
			writeError(w, http.StatusGone, "session_closed", err.Error())
		case sess.Remaining() > 0:
			writeError(w, http.StatusConflict, "session_active", err.Error())
		default:
			slog.Error("failed to finish study session", "study_id", sess.ID(), "error", err)
			writeError(w, http.StatusServiceUnavailable, "save_failed", err.Error())
		}
	}
}

// handleExitStudy ends a session early and drops it from memory.
func (s *Server) handleExitStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.studies.remove(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "unknown study session")
			return
		}
		writeJSON(w, http.StatusOK, sess.Exit())
	}
}
