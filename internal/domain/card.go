package domain

import "time"

const (
	// DefaultEaseFactor is the ease factor every card starts with.
	DefaultEaseFactor = 2.5
	// MinEaseFactor is the floor the ease factor can never drop below.
	MinEaseFactor = 1.3
)

// CardSchedule is the SM-2 state of a single flashcard.
type CardSchedule struct {
	EaseFactor  float64 `json:"ease_factor"`
	Interval    int     `json:"interval"`    // days until the next review; 0 means never scheduled
	Repetitions int     `json:"repetitions"` // consecutive successful reviews since the last reset
	NextReview  Date    `json:"next_review"`
}

// DefaultSchedule is the schedule of a card that has never been studied.
func DefaultSchedule(today Date) CardSchedule {
	return CardSchedule{
		EaseFactor:  DefaultEaseFactor,
		Interval:    0,
		Repetitions: 0,
		NextReview:  today,
	}
}

// IsNew reports whether the card has never been successfully reviewed.
func (s CardSchedule) IsNew() bool {
	return s.Repetitions == 0 && s.Interval == 0
}

// IsDue reports whether the card should be reviewed on the given day.
func (s CardSchedule) IsDue(today Date) bool {
	return !s.NextReview.After(today)
}

// QA is a bare question/answer pair as produced by the generator or an importer.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context,omitempty"`
}

// Flashcard is a question/answer pair plus its schedule, owned by one deck.
type Flashcard struct {
	ID       string       `json:"id"`
	DeckID   string       `json:"deck_id"`
	Question string       `json:"question"`
	Answer   string       `json:"answer"`
	Hash     string       `json:"-"`
	Schedule CardSchedule `json:"schedule"`
}

// Deck is a named collection of flashcards belonging to an anonymous session.
// DueCount and CardCount are derived on read and never stored.
type Deck struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id"`
	Name          string     `json:"name"`
	Topic         string     `json:"topic"`
	CreatedAt     time.Time  `json:"created_at"`
	LastStudiedAt *time.Time `json:"last_studied_at,omitempty"`
	CardCount     int        `json:"card_count"`
	DueCount      int        `json:"due_count"`
}
