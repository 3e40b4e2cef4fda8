package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/conorfennell/wikiflash/internal/content"
	"github.com/conorfennell/wikiflash/internal/domain"
	"github.com/conorfennell/wikiflash/internal/generator"
	"github.com/conorfennell/wikiflash/internal/importer"
)

type createDeckRequest struct {
	Session string `json:"session" validate:"required"`
	Input   string `json:"input" validate:"required"`
	Name    string `json:"name"`
	Count   int    `json:"count" validate:"min=1,max=50"`
}

type importDeckRequest struct {
	Session string `json:"session" validate:"required"`
	Source  string `json:"source" validate:"required"`
	Name    string `json:"name"`
}

type renameDeckRequest struct {
	Name string `json:"name" validate:"required"`
}

type updateCardRequest struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
}

type deckResponse struct {
	*domain.Deck
	Cards []domain.Flashcard `json:"cards"`
}

type createDeckResponse struct {
	Deck    *domain.Deck     `json:"deck"`
	Article *content.Article `json:"article,omitempty"`
}

type importDeckResponse struct {
	Deck   *domain.Deck    `json:"deck"`
	Result importer.Result `json:"result"`
}

// requireSession writes 404 unless the anonymous session exists.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request, id string) bool {
	ok, err := s.db.SessionExists(r.Context(), id)
	if err != nil {
		s.internalError(w, "failed to look up session", err)
		return false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown session")
		return false
	}
	return true
}

// handleListDecks lists a session's decks, newest first, with due counts.
func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "session query parameter is required")
			return
		}
		decks, err := s.db.ListDecks(r.Context(), sessionID, s.today())
		if err != nil {
			s.internalError(w, "failed to list decks", err)
			return
		}
		if decks == nil {
			decks = []domain.Deck{}
		}
		writeJSON(w, http.StatusOK, decks)
	}
}

// handleSearch suggests article titles for a topic.
func (s *Server) handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := s.content.Search(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeContentError(w, err)
			return
		}
		if results == nil {
			results = []content.SearchResult{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// handleCreateDeck fetches an article, generates cards from it and stores
// them as a new deck.
func (s *Server) handleCreateDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDeckRequest
		if !s.decode(w, r, &req) || !s.requireSession(w, r, req.Session) {
			return
		}
		ctx := r.Context()

		article, err := s.content.Fetch(ctx, req.Input)
		if err != nil {
			writeContentError(w, err)
			return
		}

		cards, err := s.generator.Generate(ctx, article.Text, article.Title, req.Count)
		if err != nil {
			writeGeneratorError(w, err)
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = article.Title
		}
		deck, err := s.db.CreateDeck(ctx, req.Session, name, article.Title, cards, s.today())
		if err != nil {
			s.internalError(w, "failed to save deck", err)
			return
		}
		slog.Info("deck created", "deck_id", deck.ID, "topic", article.Title, "cards", deck.CardCount)
		writeJSON(w, http.StatusCreated, createDeckResponse{Deck: deck, Article: article})
	}
}

func writeContentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, content.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, content.ErrNotFound):
		writeError(w, http.StatusNotFound, "article_not_found", err.Error())
	case errors.Is(err, content.ErrDisambiguation):
		writeError(w, http.StatusUnprocessableEntity, "disambiguation", err.Error())
	default:
		slog.Error("content fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "content_unavailable", "could not fetch the article")
	}
}

func writeGeneratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, generator.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, generator.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, generator.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "generator_unconfigured", err.Error())
	default:
		slog.Error("flashcard generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "generation_failed", "could not generate flashcards")
	}
}

// handleImportDeck creates a deck from markdown notes at a path or git URL.
func (s *Server) handleImportDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req importDeckRequest
		if !s.decode(w, r, &req) || !s.requireSession(w, r, req.Session) {
			return
		}
		deck, res, err := s.importer.CreateDeck(r.Context(), req.Session, req.Name, req.Source, s.today())
		if err != nil {
			slog.Warn("import failed", "source", req.Source, "error", err)
			writeError(w, http.StatusUnprocessableEntity, "import_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, importDeckResponse{Deck: deck, Result: res})
	}
}

// handleGetDeck returns a deck with all of its cards.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		today := s.today()
		deck, err := s.db.GetDeck(r.Context(), id, today)
		if err != nil {
			s.notFoundOr(w, "failed to get deck", err)
			return
		}
		cards, err := s.db.ListCards(r.Context(), id, today)
		if err != nil {
			s.internalError(w, "failed to list cards", err)
			return
		}
		if cards == nil {
			cards = []domain.Flashcard{}
		}
		writeJSON(w, http.StatusOK, deckResponse{Deck: deck, Cards: cards})
	}
}

// handleRenameDeck changes a deck's name.
func (s *Server) handleRenameDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req renameDeckRequest
		if !s.decode(w, r, &req) {
			return
		}
		id := r.PathValue("id")
		if err := s.db.RenameDeck(r.Context(), id, req.Name); err != nil {
			s.notFoundOr(w, "failed to rename deck", err)
			return
		}
		deck, err := s.db.GetDeck(r.Context(), id, s.today())
		if err != nil {
			s.notFoundOr(w, "failed to get deck", err)
			return
		}
		writeJSON(w, http.StatusOK, deck)
	}
}

// handleDeleteDeck removes a deck and its cards.
func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.DeleteDeck(r.Context(), r.PathValue("id")); err != nil {
			s.notFoundOr(w, "failed to delete deck", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleUpdateCard edits a card's question and answer.
func (s *Server) handleUpdateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateCardRequest
		if !s.decode(w, r, &req) {
			return
		}
		id := r.PathValue("id")
		if err := s.db.UpdateCardContent(r.Context(), id, req.Question, req.Answer); err != nil {
			s.notFoundOr(w, "failed to update card", err)
			return
		}
		card, err := s.db.GetCard(r.Context(), id, s.today())
		if err != nil {
			s.notFoundOr(w, "failed to get card", err)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

// handleDeleteCard removes a single card.
func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.DeleteCard(r.Context(), r.PathValue("id")); err != nil {
			s.notFoundOr(w, "failed to delete card", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
