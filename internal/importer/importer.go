// Package importer loads Q:/A: markdown notes into decks, from a local
// directory or a git repository.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/wikiflash/internal/domain"
	"github.com/conorfennell/wikiflash/internal/gitsource"
	"github.com/conorfennell/wikiflash/internal/knol"
	"github.com/conorfennell/wikiflash/internal/parser"
	"github.com/conorfennell/wikiflash/internal/storage"
)

const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Result summarizes one import.
type Result struct {
	SourceID   int64 `json:"source_id"`
	Files      int   `json:"files"`
	Parsed     int   `json:"parsed"`
	Added      int   `json:"added"`
	Duplicates int   `json:"duplicates"`
	Failed     int   `json:"failed_files"`
}

// Importer reconciles markdown sources into decks.
type Importer struct {
	db       *storage.DB
	reposDir string
}

func New(db *storage.DB, reposDir string) *Importer {
	return &Importer{db: db, reposDir: reposDir}
}

// CreateDeck parses source and stores its cards as a new deck in the session.
// Nothing is stored when the source yields no cards.
func (im *Importer) CreateDeck(ctx context.Context, sessionID, name, source string, today domain.Date) (*domain.Deck, Result, error) {
	kind, dir, err := im.resolve(ctx, source)
	if err != nil {
		return nil, Result{}, err
	}
	cards, res, err := collect(dir)
	if err != nil {
		return nil, res, err
	}
	if len(cards) == 0 {
		return nil, res, fmt.Errorf("no cards found in %s", source)
	}

	if strings.TrimSpace(name) == "" {
		name = deckName(source)
	}
	deck, err := im.db.CreateDeck(ctx, sessionID, name, "", cards, today)
	if err != nil {
		return nil, res, err
	}
	res.Added = deck.CardCount
	res.Duplicates = res.Parsed - res.Added

	if res.SourceID, err = im.register(ctx, deck.ID, source, kind); err != nil {
		return nil, res, err
	}

	slog.Info("deck imported",
		"deck_id", deck.ID,
		"source", source,
		"parsed_cards", res.Parsed,
		"added", res.Added,
		"failed_files", res.Failed,
	)
	return deck, res, nil
}

// Import adds the cards found in source to an existing deck. Cards already in
// the deck are skipped.
func (im *Importer) Import(ctx context.Context, deckID, source string, today domain.Date) (Result, error) {
	kind, dir, err := im.resolve(ctx, source)
	if err != nil {
		return Result{}, err
	}
	cards, res, err := collect(dir)
	if err != nil {
		return res, err
	}

	existing, err := im.db.CardHashes(ctx, deckID)
	if err != nil {
		return res, err
	}
	var fresh []domain.QA
	for _, card := range cards {
		if _, found := existing[knol.Hash(card)]; !found {
			fresh = append(fresh, card)
		}
	}

	if res.Added, err = im.db.AddCards(ctx, deckID, fresh, today); err != nil {
		return res, err
	}
	res.Duplicates = res.Parsed - res.Added

	if res.SourceID, err = im.register(ctx, deckID, source, kind); err != nil {
		return res, err
	}

	slog.Info("reconciliation complete",
		"deck_id", deckID,
		"source", source,
		"parsed_cards", res.Parsed,
		"added", res.Added,
		"failed_files", res.Failed,
	)
	return res, nil
}

// Refresh re-imports every source previously registered for the deck.
func (im *Importer) Refresh(ctx context.Context, deckID string, today domain.Date) (Result, error) {
	sources, err := im.db.ListSources(ctx, deckID)
	if err != nil {
		return Result{}, err
	}

	var total Result
	for _, s := range sources {
		res, err := im.Import(ctx, deckID, s.Path, today)
		if err != nil {
			slog.Error("failed to refresh source", "source_id", s.ID, "path", s.Path, "error", err)
			total.Failed++
			continue
		}
		total.Files += res.Files
		total.Parsed += res.Parsed
		total.Added += res.Added
		total.Duplicates += res.Duplicates
		total.Failed += res.Failed
	}
	return total, nil
}

// resolve returns the source type and a local directory holding its files,
// cloning or pulling git sources first.
func (im *Importer) resolve(ctx context.Context, source string) (string, string, error) {
	if !gitsource.IsRemote(source) {
		info, err := os.Stat(source)
		if err != nil {
			return "", "", fmt.Errorf("failed to read source %s: %w", source, err)
		}
		if !info.IsDir() && !isMarkdown(source) {
			return "", "", fmt.Errorf("source %s is not a directory or markdown file", source)
		}
		return SourceLocal, source, nil
	}

	dir, err := gitsource.LocalPath(im.reposDir, source)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create repos directory: %w", err)
	}
	if err := gitsource.Sync(ctx, source, dir); err != nil {
		return "", "", err
	}
	return SourceGit, dir, nil
}

func (im *Importer) register(ctx context.Context, deckID, path, kind string) (int64, error) {
	var id int64
	existing, err := im.db.FindSource(ctx, deckID, path)
	switch {
	case err == nil:
		id = existing.ID
	case errors.Is(err, storage.ErrNotFound):
		if id, err = im.db.InsertSource(ctx, deckID, path, kind); err != nil {
			return 0, err
		}
	default:
		return 0, err
	}
	if err := im.db.UpdateSourceLastScanned(ctx, id); err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", id, "error", err)
	}
	return id, nil
}

// collect parses every markdown file under root. Files that fail to parse
// are counted and logged but do not abort the walk.
func collect(root string) ([]domain.QA, Result, error) {
	var (
		cards []domain.QA
		res   Result
	)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(d.Name()) {
			return nil
		}

		res.Files++
		fileCards, err := parser.ParseFile(path)
		if err != nil {
			res.Failed++
			slog.Warn("skipping unreadable notes", "path", path, "error", err)
			return nil
		}
		cards = append(cards, fileCards...)
		return nil
	})
	if walkErr != nil {
		return nil, res, fmt.Errorf("error walking directory %s: %w", root, walkErr)
	}
	res.Parsed = len(cards)
	return cards, res, nil
}

func isMarkdown(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

func deckName(source string) string {
	name := strings.TrimSuffix(filepath.Base(strings.TrimRight(source, "/")), ".git")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "." {
		return "Imported notes"
	}
	return name
}
