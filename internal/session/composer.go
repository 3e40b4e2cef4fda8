// Package session composes study sessions from a deck and runs the
// rate-schedule-persist loop for each card.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/wikiflash/internal/domain"
)

// DefaultNewCardLimit caps the never-studied cards added to a session.
const DefaultNewCardLimit = 5

// CardSource answers the due and new card queries a session is built from.
type CardSource interface {
	// DueCards returns cards with next review on or before today, ordered
	// by next review then ease factor, both ascending.
	DueCards(ctx context.Context, deckID string, today domain.Date) ([]domain.Flashcard, error)
	NewCards(ctx context.Context, deckID string, limit int, today domain.Date) ([]domain.Flashcard, error)
	// EarliestReview reports the earliest next review in the deck, or false
	// when the deck is empty.
	EarliestReview(ctx context.Context, deckID string, today domain.Date) (domain.Date, bool, error)
}

// ScheduleWriter persists the outcome of each rating and the end of a session.
// GetCard returns the card's stored state, or an error matching
// storage.ErrNotFound once the card is deleted.
type ScheduleWriter interface {
	GetCard(ctx context.Context, cardID string, today domain.Date) (*domain.Flashcard, error)
	UpdateSchedule(ctx context.Context, cardID string, s domain.CardSchedule) error
	TouchLastStudied(ctx context.Context, deckID string, at time.Time) error
}

// Store is everything a session needs from persistence.
type Store interface {
	CardSource
	ScheduleWriter
}

// Composer builds study sessions.
type Composer struct {
	store        Store
	newCardLimit int

	shuffle func([]domain.Flashcard)
	now     func() time.Time
}

// NewComposer returns a composer that adds at most newCardLimit new cards
// to each session. A negative limit falls back to DefaultNewCardLimit.
func NewComposer(store Store, newCardLimit int) *Composer {
	if newCardLimit < 0 {
		newCardLimit = DefaultNewCardLimit
	}
	return &Composer{
		store:        store,
		newCardLimit: newCardLimit,
		shuffle:      randomShuffle,
		now:          time.Now,
	}
}

// Compose selects the cards for a session on the given day: due reviews in
// scheduled order, then up to the new-card limit of never-studied cards in
// random order.
//
// When nothing is due it returns a *NothingDueError (matching ErrNothingDue)
// naming the deck's earliest upcoming review. Persistence errors are
// returned as they are.
func (c *Composer) Compose(ctx context.Context, deckID string, today domain.Date) (*Session, error) {
	due, err := c.store.DueCards(ctx, deckID, today)
	if err != nil {
		sessionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(due) == 0 {
		next, ok, err := c.store.EarliestReview(ctx, deckID, today)
		if err != nil {
			sessionsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		sessionsTotal.WithLabelValues("nothing_due").Inc()
		return nil, &NothingDueError{DeckID: deckID, Next: next, HasUpcoming: ok}
	}

	// Never-studied cards are always due; they are carried by the shuffled
	// new-card portion so the cap applies to them.
	reviews := make([]domain.Flashcard, 0, len(due))
	for _, card := range due {
		if !card.Schedule.IsNew() {
			reviews = append(reviews, card)
		}
	}

	fresh, err := c.store.NewCards(ctx, deckID, c.newCardLimit, today)
	if err != nil {
		sessionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	fresh = withoutDuplicates(fresh, reviews)
	if len(fresh) > c.newCardLimit {
		fresh = fresh[:c.newCardLimit]
	}
	c.shuffle(fresh)

	cards := append(reviews, fresh...)
	if len(cards) == 0 {
		sessionsTotal.WithLabelValues("nothing_to_study").Inc()
		return nil, fmt.Errorf("deck %s: %w", deckID, ErrNothingToStudy)
	}

	sessionsTotal.WithLabelValues("started").Inc()
	return &Session{
		id:      uuid.NewString(),
		deckID:  deckID,
		cards:   cards,
		reviews: len(reviews),
		store:   c.store,
		now:     c.now,
	}, nil
}

func withoutDuplicates(cards, seen []domain.Flashcard) []domain.Flashcard {
	ids := make(map[string]struct{}, len(seen))
	for _, c := range seen {
		ids[c.ID] = struct{}{}
	}
	out := cards[:0:0]
	for _, c := range cards {
		if _, dup := ids[c.ID]; dup {
			continue
		}
		ids[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
