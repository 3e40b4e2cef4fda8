package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/wikiflash/internal/domain"
	"github.com/conorfennell/wikiflash/internal/srs"
	"github.com/conorfennell/wikiflash/internal/storage"
)

type state int

const (
	active state = iota
	completed // every card rated, last-studied not yet recorded
	finished
	closed
)

// Session is one sitting over an ordered sequence of cards. Rating events are
// serialized: a rating is mapped, scheduled and persisted before the next
// one is accepted.
type Session struct {
	id      string
	deckID  string
	reviews int

	store ScheduleWriter
	now   func() time.Time

	mu        sync.Mutex
	cards     []domain.Flashcard
	pos       int
	state     state
	tally     Tally
	skipped   int
	studiedAt time.Time
}

// Outcome describes a persisted rating.
type Outcome struct {
	Card    domain.Flashcard  `json:"card"` // carries the new schedule
	Rating  srs.Rating        `json:"rating"`
	Quality srs.Quality       `json:"quality"`
	Next    *domain.Flashcard `json:"next,omitempty"`
	Done    bool              `json:"done"`
	Skipped bool              `json:"skipped,omitempty"` // card was deleted and not rated
}

// Report summarizes a session.
type Report struct {
	SessionID string    `json:"session_id"`
	DeckID    string    `json:"deck_id"`
	Tally     Tally     `json:"tally"`
	Rated     int       `json:"rated"`
	Skipped   int       `json:"skipped"`
	Total     int       `json:"total"`
	Accuracy  float64   `json:"accuracy"`
	Finished  bool      `json:"finished"`
	StudiedAt time.Time `json:"studied_at,omitzero"`
}

func (s *Session) ID() string     { return s.id }
func (s *Session) DeckID() string { return s.deckID }

// Cards returns a copy of the session's sequence.
func (s *Session) Cards() []domain.Flashcard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Flashcard(nil), s.cards...)
}

// Reviews is the number of scheduled reviews at the head of the sequence.
func (s *Session) Reviews() int { return s.reviews }

// Len is the total number of cards in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

// Position is the zero-based index of the current card.
func (s *Session) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Remaining is the number of cards still to be rated.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards) - s.pos
}

// Current returns the card awaiting a rating, or false once the session is
// over.
func (s *Session) Current() (domain.Flashcard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != active {
		return domain.Flashcard{}, false
	}
	return s.cards[s.pos], true
}

// Rate records a rating for the current card on the given day. The card's
// stored schedule is read first so ratings from other sessions on the same
// deck are built upon, then the new schedule is written before the session
// advances. If the write fails the error is returned unchanged and the same
// card stays current.
//
// A card deleted since the session was composed is skipped without being
// tallied; the outcome has Skipped set and the error matches ErrCardDeleted.
//
// Rating the last card ends the session and records the deck's last-studied
// time. If that write fails the ratings stand and Finish may be retried.
func (s *Session) Rate(ctx context.Context, rating srs.Rating, today domain.Date) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case closed:
		return Outcome{}, ErrSessionClosed
	case completed, finished:
		return Outcome{}, ErrSessionFinished
	}

	q, err := srs.ToQuality(rating)
	if err != nil {
		return Outcome{}, err
	}

	cardID := s.cards[s.pos].ID
	stored, err := s.store.GetCard(ctx, cardID, today)
	if errors.Is(err, storage.ErrNotFound) {
		return s.skipLocked(ctx)
	}
	if err != nil {
		return Outcome{}, err
	}

	card := *stored
	next, err := srs.Advance(card.Schedule, q, today)
	if err != nil {
		return Outcome{}, err
	}

	if err := s.store.UpdateSchedule(ctx, card.ID, next); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.skipLocked(ctx)
		}
		reviewWriteErrors.Inc()
		slog.Warn("schedule write failed, card stays current",
			"session_id", s.id,
			"card_id", card.ID,
			"error", err,
		)
		return Outcome{}, err
	}
	reviewsTotal.WithLabelValues(string(rating)).Inc()

	card.Schedule = next
	s.cards[s.pos] = card
	s.tally.add(rating)

	return s.advanceLocked(ctx, Outcome{Card: card, Rating: rating, Quality: q})
}

// skipLocked drops the deleted current card and moves on.
func (s *Session) skipLocked(ctx context.Context) (Outcome, error) {
	card := s.cards[s.pos]
	s.skipped++
	slog.Info("current card was deleted, skipping",
		"session_id", s.id,
		"card_id", card.ID,
	)
	out, err := s.advanceLocked(ctx, Outcome{Card: card, Skipped: true})
	if err != nil {
		return out, err
	}
	return out, fmt.Errorf("%w: %s", ErrCardDeleted, card.ID)
}

// advanceLocked moves past the current card, finishing the session after
// the last one.
func (s *Session) advanceLocked(ctx context.Context, out Outcome) (Outcome, error) {
	s.pos++
	if s.pos < len(s.cards) {
		nextCard := s.cards[s.pos]
		out.Next = &nextCard
		return out, nil
	}

	out.Done = true
	s.state = completed
	if err := s.finishLocked(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// Finish records the end of a completed session and returns its report.
// It is idempotent. Calling it before every card is rated is an error.
func (s *Session) Finish(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case active:
		return s.reportLocked(), fmt.Errorf("session %s has %d cards left to rate", s.id, len(s.cards)-s.pos)
	case closed:
		return s.reportLocked(), ErrSessionClosed
	}
	if err := s.finishLocked(ctx); err != nil {
		return s.reportLocked(), err
	}
	return s.reportLocked(), nil
}

func (s *Session) finishLocked(ctx context.Context) error {
	if s.state == finished {
		return nil
	}
	at := s.now()
	if err := s.store.TouchLastStudied(ctx, s.deckID, at); err != nil {
		return fmt.Errorf("failed to record end of session %s: %w", s.id, err)
	}
	s.studiedAt = at
	s.state = finished
	slog.Info("study session finished",
		"session_id", s.id,
		"deck_id", s.deckID,
		"rated", s.tally.Total(),
		"accuracy", s.tally.Accuracy(),
	)
	return nil
}

// Exit stops the session early. Ratings already written keep their new
// schedules; unreached cards keep their old ones. Further ratings fail with
// ErrSessionClosed.
func (s *Session) Exit() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == active || s.state == completed {
		s.state = closed
	}
	return s.reportLocked()
}

// Report returns the current tally.
func (s *Session) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportLocked()
}

func (s *Session) reportLocked() Report {
	return Report{
		SessionID: s.id,
		DeckID:    s.deckID,
		Tally:     s.tally,
		Rated:     s.tally.Total(),
		Skipped:   s.skipped,
		Total:     len(s.cards),
		Accuracy:  s.tally.Accuracy(),
		Finished:  s.state == finished,
		StudiedAt: s.studiedAt,
	}
}
