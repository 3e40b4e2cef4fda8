package session

import (
	"errors"
	"fmt"

	"github.com/conorfennell/wikiflash/internal/domain"
)

var (
	// ErrNothingDue is the refusal outcome when a deck has no card due today.
	// It always arrives wrapped in a *NothingDueError.
	ErrNothingDue = errors.New("session: nothing due")
	// ErrNothingToStudy means neither reviews nor new cards could be composed.
	ErrNothingToStudy = errors.New("session: nothing to study")
	// ErrSessionFinished is returned when rating after the last card.
	ErrSessionFinished = errors.New("session: already finished")
	// ErrSessionClosed is returned when rating after the session was exited.
	ErrSessionClosed = errors.New("session: closed")
	// ErrCardDeleted means the current card no longer exists. The session
	// has skipped it and moved on.
	ErrCardDeleted = errors.New("session: card deleted")
)

// NothingDueError carries when the deck will next have something to review.
// HasUpcoming is false when the deck holds no cards at all.
type NothingDueError struct {
	DeckID      string
	Next        domain.Date
	HasUpcoming bool
}

func (e *NothingDueError) Error() string {
	if !e.HasUpcoming {
		return fmt.Sprintf("nothing due in deck %s: no upcoming reviews", e.DeckID)
	}
	return fmt.Sprintf("nothing due in deck %s: next review on %s", e.DeckID, e.Next)
}

func (e *NothingDueError) Unwrap() error { return ErrNothingDue }
