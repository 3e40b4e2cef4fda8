package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/conorfennell/wikiflash/internal/domain"
	"github.com/conorfennell/wikiflash/internal/knol"
)

const cardColumns = `id, deck_id, question, answer, hash, ease_factor, interval_days, repetitions, next_review`

// cardRow mirrors the cards table, where SM-2 columns may be NULL.
type cardRow struct {
	ID          string
	DeckID      string
	Question    string
	Answer      string
	Hash        string
	EaseFactor  sql.NullFloat64
	Interval    sql.NullInt64
	Repetitions sql.NullInt64
	NextReview  domain.Date
}

func (r *cardRow) scan(row scanner) error {
	return row.Scan(
		&r.ID,
		&r.DeckID,
		&r.Question,
		&r.Answer,
		&r.Hash,
		&r.EaseFactor,
		&r.Interval,
		&r.Repetitions,
		&r.NextReview,
	)
}

// flashcard materializes the row, filling any missing SM-2 field from the
// default schedule so callers always see a complete, valid schedule.
func (r *cardRow) flashcard(today domain.Date) domain.Flashcard {
	s := domain.DefaultSchedule(today)
	if r.EaseFactor.Valid && r.EaseFactor.Float64 >= domain.MinEaseFactor {
		s.EaseFactor = r.EaseFactor.Float64
	}
	if r.Interval.Valid && r.Interval.Int64 >= 0 {
		s.Interval = int(r.Interval.Int64)
	}
	if r.Repetitions.Valid && r.Repetitions.Int64 >= 0 {
		s.Repetitions = int(r.Repetitions.Int64)
	}
	if !r.NextReview.IsZero() {
		s.NextReview = r.NextReview
	}
	return domain.Flashcard{
		ID:       r.ID,
		DeckID:   r.DeckID,
		Question: r.Question,
		Answer:   r.Answer,
		Hash:     r.Hash,
		Schedule: s,
	}
}

func (db *DB) queryCards(ctx context.Context, today domain.Date, query string, args ...any) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		var r cardRow
		if err := r.scan(rows); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, r.flashcard(today))
	}
	return cards, rows.Err()
}

// DueCards returns every card in the deck whose next review is on or before
// today, most overdue first and, among equally overdue cards, lowest ease
// factor first. The order is deterministic and never shuffled.
func (db *DB) DueCards(ctx context.Context, deckID string, today domain.Date) ([]domain.Flashcard, error) {
	cards, err := db.queryCards(ctx, today, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE deck_id = ? AND (next_review IS NULL OR next_review <= ?)
		ORDER BY COALESCE(next_review, ?) ASC, COALESCE(ease_factor, ?) ASC, created_at ASC, id ASC
	`, deckID, today, today, domain.DefaultEaseFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due cards for deck %s: %w", deckID, err)
	}
	return cards, nil
}

// NewCards returns up to limit cards that have never been studied. The order
// carries no meaning; callers shuffle it.
func (db *DB) NewCards(ctx context.Context, deckID string, limit int, today domain.Date) ([]domain.Flashcard, error) {
	if limit <= 0 {
		return nil, nil
	}
	cards, err := db.queryCards(ctx, today, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE deck_id = ? AND COALESCE(repetitions, 0) = 0 AND COALESCE(interval_days, 0) = 0
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, deckID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch new cards for deck %s: %w", deckID, err)
	}
	return cards, nil
}

// ListCards returns all cards of a deck in creation order.
func (db *DB) ListCards(ctx context.Context, deckID string, today domain.Date) ([]domain.Flashcard, error) {
	cards, err := db.queryCards(ctx, today, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE deck_id = ?
		ORDER BY created_at ASC, id ASC
	`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for deck %s: %w", deckID, err)
	}
	return cards, nil
}

// GetCard retrieves a single card.
func (db *DB) GetCard(ctx context.Context, cardID string, today domain.Date) (*domain.Flashcard, error) {
	var r cardRow
	err := r.scan(db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, cardID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card %s: %w", cardID, err)
	}
	card := r.flashcard(today)
	return &card, nil
}

// DueCount counts the deck's cards that are due on or before today.
func (db *DB) DueCount(ctx context.Context, deckID string, today domain.Date) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cards
		WHERE deck_id = ? AND (next_review IS NULL OR next_review <= ?)
	`, deckID, today).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due cards for deck %s: %w", deckID, err)
	}
	return n, nil
}

// EarliestReview returns the earliest next review date across the deck.
// Cards without a stored date count as due today. The boolean is false when
// the deck has no cards.
func (db *DB) EarliestReview(ctx context.Context, deckID string, today domain.Date) (domain.Date, bool, error) {
	var next domain.Date
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT MIN(COALESCE(next_review, ?)), COUNT(*) FROM cards WHERE deck_id = ?
	`, today, deckID).Scan(&next, &count)
	if err != nil {
		return domain.Date{}, false, fmt.Errorf("failed to get next review date for deck %s: %w", deckID, err)
	}
	if count == 0 {
		return domain.Date{}, false, nil
	}
	return next, true, nil
}

// UpdateSchedule writes a card's new SM-2 state.
func (db *DB) UpdateSchedule(ctx context.Context, cardID string, s domain.CardSchedule) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET ease_factor = ?, interval_days = ?, repetitions = ?, next_review = ?
		WHERE id = ?
	`,
		s.EaseFactor,
		s.Interval,
		s.Repetitions,
		s.NextReview,
		cardID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule for card %s: %w", cardID, err)
	}
	return expectAffected(res, "card", cardID)
}

// UpdateCardContent edits a card's question and answer, keeping its schedule.
func (db *DB) UpdateCardContent(ctx context.Context, cardID, question, answer string) error {
	qa := domain.QA{Question: strings.TrimSpace(question), Answer: strings.TrimSpace(answer)}
	if qa.Question == "" || qa.Answer == "" {
		return fmt.Errorf("failed to update card %s: question and answer are required", cardID)
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards SET question = ?, answer = ?, hash = ? WHERE id = ?
	`, qa.Question, qa.Answer, knol.Hash(qa), cardID)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", cardID, err)
	}
	return expectAffected(res, "card", cardID)
}

// DeleteCard removes a card from the database by its ID.
func (db *DB) DeleteCard(ctx context.Context, cardID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, cardID)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", cardID, err)
	}
	return expectAffected(res, "card", cardID)
}

// CardHashes maps each card hash in the deck to its card ID.
func (db *DB) CardHashes(ctx context.Context, deckID string) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT hash, id FROM cards WHERE deck_id = ?`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get card hashes for deck %s: %w", deckID, err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var hash, id string
		if err := rows.Scan(&hash, &id); err != nil {
			return nil, fmt.Errorf("failed to scan card hash row: %w", err)
		}
		hashes[hash] = id
	}
	return hashes, rows.Err()
}
