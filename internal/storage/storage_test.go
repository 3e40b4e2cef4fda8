package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/wikiflash/internal/domain"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return db
}

func qa(n int) []domain.QA {
	cards := make([]domain.QA, n)
	for i := range cards {
		cards[i] = domain.QA{
			Question: fmt.Sprintf("Question %d", i+1),
			Answer:   fmt.Sprintf("Answer %d", i+1),
		}
	}
	return cards
}

func newDeck(t *testing.T, db *DB, cards []domain.QA, today domain.Date) *domain.Deck {
	t.Helper()
	ctx := context.Background()
	sessionID, err := db.CreateSession(ctx)
	require.NoError(t, err)
	deck, err := db.CreateDeck(ctx, sessionID, "French Revolution", "History", cards, today)
	require.NoError(t, err)
	return deck
}

func TestSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.CreateSession(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	ok, err := db.SessionExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.SessionExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateDeckStartsCardsWithDefaultSchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	today := domain.MustParseDate("2025-01-01")

	deck := newDeck(t, db, qa(3), today)
	assert.Equal(t, 3, deck.CardCount)
	assert.Equal(t, 3, deck.DueCount)
	assert.Nil(t, deck.LastStudiedAt)

	cards, err := db.ListCards(ctx, deck.ID, today)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	for _, c := range cards {
		assert.Equal(t, domain.DefaultSchedule(today), c.Schedule)
		assert.Equal(t, deck.ID, c.DeckID)
	}
	assert.Equal(t, "Question 1", cards[0].Question)
}

func TestCreateDeckSkipsDuplicateCards(t *testing.T) {
	db := setupTestDB(t)
	today := domain.MustParseDate("2025-01-01")

	cards := []domain.QA{
		{Question: "What fell in 1789?", Answer: "The Bastille"},
		{Question: "  what fell in 1789? ", Answer: "the bastille"},
		{Question: "Who was king?", Answer: "Louis XVI"},
	}
	deck := newDeck(t, db, cards, today)
	assert.Equal(t, 2, deck.CardCount)
}

func TestCreateDeckIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	today := domain.MustParseDate("2025-01-01")

	// Unknown session violates the foreign key, so nothing may be left behind.
	_, err := db.CreateDeck(ctx, "no-such-session", "Deck", "", qa(2), today)
	require.Error(t, err)

	decks, err := db.ListDecks(ctx, "no-such-session", today)
	require.NoError(t, err)
	assert.Empty(t, decks)
}

func TestDueCardsOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	created := domain.MustParseDate("2025-01-01")
	today := domain.MustParseDate("2025-01-10")

	deck := newDeck(t, db, qa(5), created)
	cards, err := db.ListCards(ctx, deck.ID, created)
	require.NoError(t, err)

	schedules := []domain.CardSchedule{
		{EaseFactor: 2.5, Interval: 6, Repetitions: 2, NextReview: domain.MustParseDate("2025-01-09")},
		{EaseFactor: 1.8, Interval: 6, Repetitions: 2, NextReview: domain.MustParseDate("2025-01-09")},
		{EaseFactor: 2.6, Interval: 1, Repetitions: 1, NextReview: domain.MustParseDate("2025-01-05")},
		{EaseFactor: 2.6, Interval: 15, Repetitions: 3, NextReview: domain.MustParseDate("2025-01-25")},
		{EaseFactor: 2.2, Interval: 1, Repetitions: 0, NextReview: today},
	}
	for i, s := range schedules {
		require.NoError(t, db.UpdateSchedule(ctx, cards[i].ID, s))
	}

	due, err := db.DueCards(ctx, deck.ID, today)
	require.NoError(t, err)

	var got []string
	for _, c := range due {
		got = append(got, c.ID)
	}
	assert.Equal(t, []string{cards[2].ID, cards[1].ID, cards[0].ID, cards[4].ID}, got)

	again, err := db.DueCards(ctx, deck.ID, today)
	require.NoError(t, err)
	assert.Equal(t, due, again, "due order must be stable between identical calls")

	for i := 1; i < len(due); i++ {
		prev, cur := due[i-1].Schedule, due[i].Schedule
		require.LessOrEqual(t, prev.NextReview.Compare(cur.NextReview), 0)
		if prev.NextReview.Equal(cur.NextReview) {
			assert.LessOrEqual(t, prev.EaseFactor, cur.EaseFactor)
		}
	}

	n, err := db.DueCount(ctx, deck.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestNewCards(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	today := domain.MustParseDate("2025-01-01")

	deck := newDeck(t, db, qa(8), today)
	cards, err := db.ListCards(ctx, deck.ID, today)
	require.NoError(t, err)

	studied := domain.CardSchedule{EaseFactor: 2.6, Interval: 1, Repetitions: 1, NextReview: today.AddDays(1)}
	require.NoError(t, db.UpdateSchedule(ctx, cards[0].ID, studied))
	lapsed := domain.CardSchedule{EaseFactor: 2.5, Interval: 1, Repetitions: 0, NextReview: today.AddDays(1)}
	require.NoError(t, db.UpdateSchedule(ctx, cards[1].ID, lapsed))

	fresh, err := db.NewCards(ctx, deck.ID, 5, today)
	require.NoError(t, err)
	require.Len(t, fresh, 5)
	for _, c := range fresh {
		assert.True(t, c.Schedule.IsNew())
		assert.NotEqual(t, cards[0].ID, c.ID)
		assert.NotEqual(t, cards[1].ID, c.ID, "a lapsed card has interval 1 and is not new")
	}

	all, err := db.NewCards(ctx, deck.ID, 100, today)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	none, err := db.NewCards(ctx, deck.ID, 0, today)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMissingScheduleFieldsDefaultOnRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	today := domain.MustParseDate("2025-01-04")

	deck := newDeck(t, db, qa(1), domain.MustParseDate("2025-01-01"))
	_, err := db.conn.ExecContext(ctx, `
		UPDATE cards SET ease_factor = NULL, interval_days = NULL, repetitions = NULL, next_review = NULL
		WHERE deck_id = ?
	`, deck.ID)
	require.NoError(t, err)

	due, err := db.DueCards(ctx, deck.ID, today)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, domain.DefaultSchedule(today), due[0].Schedule)

	fresh, err := db.NewCards(ctx, deck.ID, 5, today)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)

	next, ok, err := db.EarliestReview(ctx, deck.ID, today)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, today, next)
}

func TestEarliestReview(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	today := domain.MustParseDate("2025-01-01")

	empty := newDeck(t, db, nil, today)
	_, ok, err := db.EarliestReview(ctx, empty.ID, today)
	require.NoError(t, err)
	assert.False(t, ok)

	deck := newDeck(t, db, qa(2), today)
	cards, err := db.ListCards(ctx, deck.ID, today)
	require.NoError(t, err)
	require.NoError(t, db.UpdateSchedule(ctx, cards[0].ID, domain.CardSchedule{EaseFactor: 2.5, Interval: 31, Repetitions: 3, NextReview: domain.MustParseDate("2025-02-01")}))
	require.NoError(t, db.UpdateSchedule(ctx, cards[1].ID, domain.CardSchedule{EaseFactor: 2.5, Interval: 40, Repetitions: 3, NextReview: domain.MustParseDate("2025-02-10")}))

	next, ok, err := db.EarliestReview(ctx, deck.ID, today)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-02-01", next.String())
}

func TestUpdateScheduleUnknownCard(t *testing.T) {
	db := setupTestDB(t)
	err := db.UpdateSchedule(context.Background(), "missing", domain.DefaultSchedule(domain.Today()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeckLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	today := domain.MustParseDate("2025-01-01")

	sessionID, err := db.CreateSession(ctx)
	require.NoError(t, err)
	first, err := db.CreateDeck(ctx, sessionID, "Older", "", qa(1), today)
	require.NoError(t, err)
	second, err := db.CreateDeck(ctx, sessionID, "Newer", "", qa(2), today)
	require.NoError(t, err)

	decks, err := db.ListDecks(ctx, sessionID, today)
	require.NoError(t, err)
	require.Len(t, decks, 2)
	assert.Equal(t, second.ID, decks[0].ID, "newest deck first")
	assert.Equal(t, 2, decks[0].CardCount)

	require.NoError(t, db.RenameDeck(ctx, first.ID, "Renamed"))
	got, err := db.GetDeck(ctx, first.ID, today)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	studiedAt := time.Date(2025, time.January, 1, 18, 30, 0, 0, time.UTC)
	require.NoError(t, db.TouchLastStudied(ctx, first.ID, studiedAt))
	last, err := db.LastStudied(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(studiedAt))

	require.NoError(t, db.DeleteDeck(ctx, second.ID))
	_, err = db.GetDeck(ctx, second.ID, today)
	assert.ErrorIs(t, err, ErrNotFound)
	cards, err := db.ListCards(ctx, second.ID, today)
	require.NoError(t, err)
	assert.Empty(t, cards)

	assert.ErrorIs(t, db.DeleteDeck(ctx, second.ID), ErrNotFound)
	assert.ErrorIs(t, db.TouchLastStudied(ctx, second.ID, studiedAt), ErrNotFound)
}

func TestCardEdits(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	today := domain.MustParseDate("2025-01-01")

	deck := newDeck(t, db, qa(2), today)
	cards, err := db.ListCards(ctx, deck.ID, today)
	require.NoError(t, err)

	require.NoError(t, db.UpdateCardContent(ctx, cards[0].ID, "Edited?", "Yes."))
	got, err := db.GetCard(ctx, cards[0].ID, today)
	require.NoError(t, err)
	assert.Equal(t, "Edited?", got.Question)
	assert.Equal(t, "Yes.", got.Answer)
	assert.NotEqual(t, cards[0].Hash, got.Hash)

	assert.Error(t, db.UpdateCardContent(ctx, cards[0].ID, " ", "x"))

	require.NoError(t, db.DeleteCard(ctx, cards[1].ID))
	_, err = db.GetCard(ctx, cards[1].ID, today)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddCardsAndHashes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	today := domain.MustParseDate("2025-01-01")

	deck := newDeck(t, db, qa(2), today)
	added, err := db.AddCards(ctx, deck.ID, qa(4), today)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	hashes, err := db.CardHashes(ctx, deck.ID)
	require.NoError(t, err)
	assert.Len(t, hashes, 4)
}

func TestSources(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	deck := newDeck(t, db, nil, domain.MustParseDate("2025-01-01"))

	id, err := db.InsertSource(ctx, deck.ID, "notes/", "local")
	require.NoError(t, err)

	s, err := db.FindSource(ctx, deck.ID, "notes/")
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
	assert.False(t, s.LastScanned.Valid)

	require.NoError(t, db.UpdateSourceLastScanned(ctx, id))
	sources, err := db.ListSources(ctx, deck.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.True(t, sources[0].LastScanned.Valid)

	_, err = db.FindSource(ctx, deck.ID, "elsewhere/")
	assert.ErrorIs(t, err, ErrNotFound)
}
