package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Source represents a markdown card source imported into a deck, either a
// local path or a Git URL.
type Source struct {
	ID          int64
	DeckID      string
	Path        string
	Type        string // "local" or "git"
	LastScanned sql.NullTime
}

// InsertSource records a new source for a deck and returns its ID.
func (db *DB) InsertSource(ctx context.Context, deckID, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (deck_id, path, type)
		VALUES (?, ?, ?)
	`, deckID, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSource retrieves a deck's source by its path.
func (db *DB) FindSource(ctx context.Context, deckID, path string) (*Source, error) {
	var s Source
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, deck_id, path, type, last_scanned
		FROM sources WHERE deck_id = ? AND path = ?
	`, deckID, path).Scan(&s.ID, &s.DeckID, &s.Path, &s.Type, &s.LastScanned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// ListSources retrieves all sources imported into a deck.
func (db *DB) ListSources(ctx context.Context, deckID string) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, deck_id, path, type, last_scanned
		FROM sources WHERE deck_id = ?
		ORDER BY id
	`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources for deck %s: %w", deckID, err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.DeckID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE sources SET last_scanned = ? WHERE id = ?
	`, db.now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return expectAffected(res, "source", fmt.Sprint(sourceID))
}
