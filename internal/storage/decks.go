package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/wikiflash/internal/domain"
	"github.com/conorfennell/wikiflash/internal/knol"
)

// deckColumns selects a deck plus its derived counts. The single placeholder
// is today's date, used to compute due_count.
const deckColumns = `
	d.id, d.session_id, d.name, d.topic, d.created_at, d.last_studied_at,
	COUNT(c.id),
	COALESCE(SUM(CASE WHEN c.id IS NOT NULL AND (c.next_review IS NULL OR c.next_review <= ?) THEN 1 ELSE 0 END), 0)
`

// CreateDeck stores a deck and its cards in a single transaction. Every card
// starts with the default schedule, due today. Cards whose normalized content
// repeats within the deck are stored once.
func (db *DB) CreateDeck(ctx context.Context, sessionID, name, topic string, cards []domain.QA, today domain.Date) (*domain.Deck, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("failed to create deck: name is required")
	}

	deckID := newID()
	createdAt := db.now().UTC()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decks (id, session_id, name, topic, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, deckID, sessionID, name, topic, createdAt); err != nil {
			return fmt.Errorf("failed to create deck: %w", err)
		}
		if _, err := db.insertCards(ctx, tx, deckID, cards, today); err != nil {
			return fmt.Errorf("failed to create cards: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return db.GetDeck(ctx, deckID, today)
}

// AddCards appends cards to an existing deck and returns how many were new.
func (db *DB) AddCards(ctx context.Context, deckID string, cards []domain.QA, today domain.Date) (int, error) {
	var added int
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		added, err = db.insertCards(ctx, tx, deckID, cards, today)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add cards to deck %s: %w", deckID, err)
	}
	return added, nil
}

func (db *DB) insertCards(ctx context.Context, tx *sql.Tx, deckID string, cards []domain.QA, today domain.Date) (int, error) {
	if len(cards) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (id, deck_id, question, answer, hash, ease_factor, interval_days, repetitions, next_review, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(deck_id, hash) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	s := domain.DefaultSchedule(today)
	createdAt := db.now().UTC()
	var added int
	for i, card := range cards {
		res, err := stmt.ExecContext(ctx,
			newID(),
			deckID,
			strings.TrimSpace(card.Question),
			strings.TrimSpace(card.Answer),
			knol.Hash(card),
			s.EaseFactor,
			s.Interval,
			s.Repetitions,
			s.NextReview,
			// Spread creation times so insertion order survives ORDER BY created_at.
			createdAt.Add(time.Duration(i)*time.Microsecond),
		)
		if err != nil {
			return added, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

// GetDeck retrieves a deck with its card and due counts as of today.
func (db *DB) GetDeck(ctx context.Context, deckID string, today domain.Date) (*domain.Deck, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+deckColumns+`
		FROM decks d LEFT JOIN cards c ON c.deck_id = d.id
		WHERE d.id = ?
		GROUP BY d.id
	`, today, deckID)

	deck, err := scanDeck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deck %s: %w", deckID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deck %s: %w", deckID, err)
	}
	return deck, nil
}

// ListDecks returns the session's decks, newest first.
func (db *DB) ListDecks(ctx context.Context, sessionID string, today domain.Date) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+deckColumns+`
		FROM decks d LEFT JOIN cards c ON c.deck_id = d.id
		WHERE d.session_id = ?
		GROUP BY d.id
		ORDER BY d.created_at DESC, d.id
	`, today, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		deck, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, *deck)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list decks for session %s: %w", sessionID, err)
	}
	return decks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeck(row scanner) (*domain.Deck, error) {
	var (
		d           domain.Deck
		lastStudied sql.NullTime
	)
	if err := row.Scan(
		&d.ID,
		&d.SessionID,
		&d.Name,
		&d.Topic,
		&d.CreatedAt,
		&lastStudied,
		&d.CardCount,
		&d.DueCount,
	); err != nil {
		return nil, err
	}
	if lastStudied.Valid {
		t := lastStudied.Time
		d.LastStudiedAt = &t
	}
	return &d, nil
}

// RenameDeck changes a deck's display name.
func (db *DB) RenameDeck(ctx context.Context, deckID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("failed to rename deck %s: name is required", deckID)
	}
	res, err := db.conn.ExecContext(ctx, `UPDATE decks SET name = ? WHERE id = ?`, name, deckID)
	if err != nil {
		return fmt.Errorf("failed to rename deck %s: %w", deckID, err)
	}
	return expectAffected(res, "deck", deckID)
}

// DeleteDeck removes a deck together with its cards and sources.
func (db *DB) DeleteDeck(ctx context.Context, deckID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE deck_id = ?`, deckID); err != nil {
			return fmt.Errorf("failed to delete cards of deck %s: %w", deckID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE deck_id = ?`, deckID); err != nil {
			return fmt.Errorf("failed to delete sources of deck %s: %w", deckID, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, deckID)
		if err != nil {
			return fmt.Errorf("failed to delete deck %s: %w", deckID, err)
		}
		return expectAffected(res, "deck", deckID)
	})
}

// LastStudied returns when the deck was last studied, or nil if never.
func (db *DB) LastStudied(ctx context.Context, deckID string) (*time.Time, error) {
	var ts sql.NullTime
	err := db.conn.QueryRowContext(ctx, `SELECT last_studied_at FROM decks WHERE id = ?`, deckID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deck %s: %w", deckID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last studied for deck %s: %w", deckID, err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}

// TouchLastStudied records that the deck was studied at the given instant.
func (db *DB) TouchLastStudied(ctx context.Context, deckID string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE decks SET last_studied_at = ? WHERE id = ?`, at.UTC(), deckID)
	if err != nil {
		return fmt.Errorf("failed to update last studied for deck %s: %w", deckID, err)
	}
	return expectAffected(res, "deck", deckID)
}

func expectAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
