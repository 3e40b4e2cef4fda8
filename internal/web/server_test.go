package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/wikiflash/internal/content"
	"github.com/conorfennell/wikiflash/internal/domain"
	"github.com/conorfennell/wikiflash/internal/generator"
	"github.com/conorfennell/wikiflash/internal/importer"
	"github.com/conorfennell/wikiflash/internal/storage"
)

var testToday = domain.NewDate(2025, 1, 10)

type fakeContent struct {
	err error
}

func (f *fakeContent) Search(_ context.Context, topic string) ([]content.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if topic == "" {
		return nil, content.ErrEmptyInput
	}
	return []content.SearchResult{{Title: topic, PageID: 1}}, nil
}

func (f *fakeContent) Fetch(_ context.Context, input string) (*content.Article, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &content.Article{
		Title: input,
		URL:   "https://en.wikipedia.org/wiki/" + input,
		Text:  "Some article text about " + input,
	}, nil
}

type fakeGenerator struct {
	err   error
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, _, topic string, count int) ([]domain.QA, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cards := make([]domain.QA, count)
	for i := range cards {
		cards[i] = domain.QA{
			Question: fmt.Sprintf("%s question %d", topic, i+1),
			Answer:   fmt.Sprintf("answer %d", i+1),
		}
	}
	return cards, nil
}

type testServer struct {
	*Server
	content   *fakeContent
	generator *fakeGenerator
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := &testServer{content: &fakeContent{}, generator: &fakeGenerator{}}
	ts.Server = NewServer(Deps{
		DB:           db,
		Content:      ts.content,
		Generator:    ts.generator,
		Importer:     importer.New(db, t.TempDir()),
		NewCardLimit: 5,
	})
	ts.today = func() domain.Date { return testToday }
	return ts
}

// do sends a request with an optional JSON body and decodes the reply into out.
func (ts *testServer) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	ts.ServeHTTP(rr, req)
	if out != nil && rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out), rr.Body.String())
	}
	return rr.Code
}

func (ts *testServer) newSession(t *testing.T) string {
	t.Helper()
	var resp map[string]string
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/sessions", nil, &resp))
	require.NotEmpty(t, resp["id"])
	return resp["id"]
}

func (ts *testServer) newDeck(t *testing.T, sessionID string, count int) *domain.Deck {
	t.Helper()
	var resp createDeckResponse
	code := ts.do(t, http.MethodPost, "/api/decks", map[string]any{
		"session": sessionID,
		"input":   "French Revolution",
		"count":   count,
	}, &resp)
	require.Equal(t, http.StatusCreated, code)
	return resp.Deck
}

func TestSessions(t *testing.T) {
	ts := setupTestServer(t)
	id := ts.newSession(t)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/sessions/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/sessions/missing", nil, nil))
}

func TestCreateDeck(t *testing.T) {
	ts := setupTestServer(t)
	sessionID := ts.newSession(t)

	deck := ts.newDeck(t, sessionID, 4)
	assert.Equal(t, "French Revolution", deck.Name)
	assert.Equal(t, "French Revolution", deck.Topic)
	assert.Equal(t, 4, deck.CardCount)
	assert.Equal(t, 4, deck.DueCount)

	var decks []domain.Deck
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/decks?session="+sessionID, nil, &decks))
	require.Len(t, decks, 1)
	assert.Equal(t, deck.ID, decks[0].ID)

	var got deckResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/decks/"+deck.ID, nil, &got))
	assert.Len(t, got.Cards, 4)
	for _, c := range got.Cards {
		assert.Equal(t, domain.DefaultSchedule(testToday), c.Schedule)
	}
}

func TestSearch(t *testing.T) {
	ts := setupTestServer(t)

	var results []content.SearchResult
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/search?q=Mercury", nil, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Mercury", results[0].Title)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/search", nil, nil))
}

func TestCreateDeckRejectsBadRequests(t *testing.T) {
	ts := setupTestServer(t)
	sessionID := ts.newSession(t)

	testCases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"Missing input", map[string]any{"session": sessionID, "count": 5}, http.StatusBadRequest},
		{"Count too low", map[string]any{"session": sessionID, "input": "x", "count": 0}, http.StatusBadRequest},
		{"Count too high", map[string]any{"session": sessionID, "input": "x", "count": 51}, http.StatusBadRequest},
		{"Unknown session", map[string]any{"session": "nope", "input": "x", "count": 5}, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, ts.do(t, http.MethodPost, "/api/decks", tc.body, nil))
		})
	}
	assert.Zero(t, ts.generator.calls)
}

func TestCreateDeckMapsUpstreamErrors(t *testing.T) {
	testCases := []struct {
		name       string
		contentErr error
		genErr     error
		code       int
		errCode    string
	}{
		{"Article missing", content.ErrNotFound, nil, http.StatusNotFound, "article_not_found"},
		{"Disambiguation", content.ErrDisambiguation, nil, http.StatusUnprocessableEntity, "disambiguation"},
		{"Wikipedia down", fmt.Errorf("dial tcp: refused"), nil, http.StatusBadGateway, "content_unavailable"},
		{"Rate limited", nil, generator.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"No API key", nil, generator.ErrNotConfigured, http.StatusServiceUnavailable, "generator_unconfigured"},
		{"Bad model output", nil, generator.ErrInvalidResponse, http.StatusBadGateway, "generation_failed"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := setupTestServer(t)
			sessionID := ts.newSession(t)
			ts.content.err = tc.contentErr
			ts.generator.err = tc.genErr

			var resp errorResponse
			code := ts.do(t, http.MethodPost, "/api/decks", map[string]any{
				"session": sessionID, "input": "Mercury", "count": 3,
			}, &resp)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.errCode, resp.Error)

			var decks []domain.Deck
			ts.do(t, http.MethodGet, "/api/decks?session="+sessionID, nil, &decks)
			assert.Empty(t, decks, "no deck is stored on failure")
		})
	}
}

func TestImportDeck(t *testing.T) {
	ts := setupTestServer(t)
	sessionID := ts.newSession(t)

	dir := t.TempDir()
	notes := "Q: Capital of France?\nA: Paris\n---\nQ: 2+2?\nA: 4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte(notes), 0o644))

	var resp importDeckResponse
	code := ts.do(t, http.MethodPost, "/api/decks/import", map[string]any{
		"session": sessionID, "source": dir, "name": "Trivia",
	}, &resp)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Trivia", resp.Deck.Name)
	assert.Equal(t, 2, resp.Result.Added)

	empty := t.TempDir()
	code = ts.do(t, http.MethodPost, "/api/decks/import", map[string]any{
		"session": sessionID, "source": empty,
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestDeckAndCardEdits(t *testing.T) {
	ts := setupTestServer(t)
	deck := ts.newDeck(t, ts.newSession(t), 2)

	var renamed domain.Deck
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, "/api/decks/"+deck.ID, map[string]string{"name": "Revolutions"}, &renamed))
	assert.Equal(t, "Revolutions", renamed.Name)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPatch, "/api/decks/"+deck.ID, map[string]string{"name": ""}, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPatch, "/api/decks/missing", map[string]string{"name": "x"}, nil))

	var got deckResponse
	ts.do(t, http.MethodGet, "/api/decks/"+deck.ID, nil, &got)
	cardID := got.Cards[0].ID

	var card domain.Flashcard
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, "/api/cards/"+cardID, map[string]string{
		"question": "When did the Bastille fall?", "answer": "1789",
	}, &card))
	assert.Equal(t, "1789", card.Answer)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/cards/"+cardID, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/cards/"+cardID, nil, nil))

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/decks/"+deck.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/decks/"+deck.ID, nil, nil))
}

func TestStudyFlow(t *testing.T) {
	ts := setupTestServer(t)
	deck := ts.newDeck(t, ts.newSession(t), 3)

	var study studyResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/decks/"+deck.ID+"/study", nil, &study))
	assert.Equal(t, 3, study.Total)
	assert.Equal(t, 0, study.Reviews)
	require.NotNil(t, study.Card)

	path := "/api/study/" + study.StudyID
	var rate rateResponse
	for i := range 3 {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, path+"/rate", map[string]string{"rating": "good"}, &rate))
		assert.Equal(t, 1, rate.Card.Schedule.Interval)
		assert.Equal(t, testToday.AddDays(1), rate.Card.Schedule.NextReview)
		assert.Equal(t, i == 2, rate.Done)
	}
	assert.True(t, rate.Report.Finished)
	assert.Equal(t, 3, rate.Report.Tally.Good)
	assert.InDelta(t, 1.0, rate.Report.Accuracy, 1e-9)

	var finished errorResponse
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, path+"/rate", map[string]string{"rating": "good"}, &finished))
	assert.Equal(t, "session_finished", finished.Error)

	var report map[string]any
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, path+"/finish", nil, &report))
	assert.Equal(t, true, report["finished"])

	var got domain.Deck
	ts.do(t, http.MethodGet, "/api/decks/"+deck.ID, nil, &got)
	assert.NotNil(t, got.LastStudiedAt)
	assert.Zero(t, got.DueCount)

	var refused nothingDueResponse
	require.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/decks/"+deck.ID+"/study", nil, &refused))
	assert.Equal(t, "nothing_due", refused.Error)
	require.NotNil(t, refused.NextReview)
	assert.Equal(t, testToday.AddDays(1), *refused.NextReview)
	assert.Equal(t, 1, refused.DaysUntil)
}

func TestStudySkipsDeletedCard(t *testing.T) {
	ts := setupTestServer(t)
	deck := ts.newDeck(t, ts.newSession(t), 2)

	var study studyResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/decks/"+deck.ID+"/study", nil, &study))
	path := "/api/study/" + study.StudyID
	require.NotNil(t, study.Card)
	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/cards/"+study.Card.ID, nil, nil))

	var skipped rateResponse
	require.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, path+"/rate", map[string]string{"rating": "good"}, &skipped))
	assert.Equal(t, "card_deleted", skipped.Error)
	assert.True(t, skipped.Skipped)
	require.NotNil(t, skipped.Next)
	assert.NotEqual(t, study.Card.ID, skipped.Next.ID)

	var done rateResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, path+"/rate", map[string]string{"rating": "good"}, &done))
	assert.True(t, done.Done)
	assert.Equal(t, skipped.Next.ID, done.Card.ID)
	assert.True(t, done.Report.Finished)
	assert.Equal(t, 1, done.Report.Rated)
	assert.Equal(t, 1, done.Report.Skipped)
}

func TestConcurrentStudySessionsShareProgress(t *testing.T) {
	ts := setupTestServer(t)
	deck := ts.newDeck(t, ts.newSession(t), 1)

	var first, second studyResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/decks/"+deck.ID+"/study", nil, &first))
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/decks/"+deck.ID+"/study", nil, &second))

	rating := map[string]string{"rating": "good"}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/study/"+first.StudyID+"/rate", rating, nil))

	var out rateResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/study/"+second.StudyID+"/rate", rating, &out))
	assert.Equal(t, 2, out.Card.Schedule.Repetitions)
	assert.Equal(t, 6, out.Card.Schedule.Interval)

	var got deckResponse
	ts.do(t, http.MethodGet, "/api/decks/"+deck.ID, nil, &got)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, out.Card.Schedule, got.Cards[0].Schedule)
}

func TestStudyRejectsUnknownRating(t *testing.T) {
	ts := setupTestServer(t)
	deck := ts.newDeck(t, ts.newSession(t), 1)

	var study studyResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/decks/"+deck.ID+"/study", nil, &study))

	path := "/api/study/" + study.StudyID
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, path+"/rate", map[string]string{"rating": "meh"}, nil))

	var current studyResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, path, nil, &current))
	assert.Equal(t, 0, current.Position)
	assert.Equal(t, study.Card.ID, current.Card.ID)
}

func TestStudyExit(t *testing.T) {
	ts := setupTestServer(t)
	deck := ts.newDeck(t, ts.newSession(t), 2)

	var study studyResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/decks/"+deck.ID+"/study", nil, &study))
	path := "/api/study/" + study.StudyID

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, path+"/rate", map[string]string{"rating": "very_hard"}, nil))

	var report map[string]any
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, path, nil, &report))
	assert.Equal(t, float64(1), report["rated"])
	assert.Equal(t, false, report["finished"])

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, path+"/rate", map[string]string{"rating": "good"}, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, path, nil, nil))

	var got domain.Deck
	ts.do(t, http.MethodGet, "/api/decks/"+deck.ID, nil, &got)
	assert.Nil(t, got.LastStudiedAt, "exiting early does not count as studying")
}

func TestStudyEmptyDeck(t *testing.T) {
	ts := setupTestServer(t)
	deck := ts.newDeck(t, ts.newSession(t), 1)

	var got deckResponse
	ts.do(t, http.MethodGet, "/api/decks/"+deck.ID, nil, &got)
	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/cards/"+got.Cards[0].ID, nil, nil))

	var refused nothingDueResponse
	require.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/decks/"+deck.ID+"/study", nil, &refused))
	assert.Equal(t, "deck_empty", refused.Error)
	assert.Nil(t, refused.NextReview)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/decks/missing/study", nil, nil))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := setupTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	ts.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "go_goroutines"))
}
