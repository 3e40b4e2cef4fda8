// Package content fetches reference text for deck generation from Wikipedia.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"
)

var (
	ErrNotFound       = errors.New("content: page not found")
	ErrDisambiguation = errors.New("content: disambiguation page")
	ErrEmptyInput     = errors.New("content: topic cannot be empty")
)

const (
	searchLimit = 5
	maxBodySize = 10 * 1024 * 1024
)

// Config configures the Wikipedia client.
type Config struct {
	APIURL            string        `koanf:"api_url" validate:"required,url"`
	ArticleURL        string        `koanf:"article_url" validate:"required,url"`
	MaxWords          int           `koanf:"max_words" validate:"min=100"`
	UserAgent         string        `koanf:"user_agent" validate:"required"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DefaultConfig points at English Wikipedia.
func DefaultConfig() Config {
	return Config{
		APIURL:            "https://en.wikipedia.org/w/api.php",
		ArticleURL:        "https://en.wikipedia.org/wiki/",
		MaxWords:          5000,
		UserAgent:         "wikiflash/1.0 (flashcard generator)",
		RequestsPerSecond: 5,
		Timeout:           15 * time.Second,
	}
}

// SearchResult is one hit of a topic search.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	PageID  int    `json:"pageid"`
}

// Article is cleaned article text ready for card generation.
type Article struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Text      string `json:"text"`
	Summary   string `json:"summary"`
	WordCount int    `json:"word_count"`
}

// Client talks to the MediaWiki search API and article pages. Outgoing
// requests share one rate limiter.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// Search looks up a topic and returns up to five matching pages.
func (c *Client) Search(ctx context.Context, topic string) ([]SearchResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyInput
	}

	u, err := url.Parse(c.cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	q := u.Query()
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("srsearch", topic)
	q.Set("srlimit", strconv.Itoa(searchLimit))
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String(), "application/json")
	if err != nil {
		return nil, fmt.Errorf("failed to search wikipedia for %q: %w", topic, err)
	}

	var resp struct {
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
		Query struct {
			Search []SearchResult `json:"search"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("wikipedia api error: %s %s", resp.Error.Code, resp.Error.Info)
	}

	results := resp.Query.Search
	if len(results) > searchLimit {
		results = results[:searchLimit]
	}
	return results, nil
}

// Fetch resolves input, either a Wikipedia URL or a topic, to an article and
// returns its cleaned text.
func (c *Client) Fetch(ctx context.Context, input string) (*Article, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	var title string
	if DetectInputType(input) == InputURL {
		t, ok := ExtractPageTitle(input)
		if !ok {
			return nil, fmt.Errorf("%w: cannot read a title from %s", ErrNotFound, input)
		}
		title = t
	} else {
		results, err := c.Search(ctx, input)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("%w: no results for %q", ErrNotFound, input)
		}
		title = results[0].Title
	}

	return c.fetchArticle(ctx, title)
}

func (c *Client) fetchArticle(ctx context.Context, title string) (*Article, error) {
	pageURL := strings.TrimSuffix(c.cfg.ArticleURL, "/") + "/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid article url %s: %w", pageURL, err)
	}

	body, err := c.get(ctx, pageURL, "text/html")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article %q: %w", title, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article %q: %w", title, err)
	}

	text := cleanText(article.TextContent)
	if text == "" {
		return nil, fmt.Errorf("%w: %q has no readable text", ErrNotFound, title)
	}
	if strings.Contains(text, "may refer to:") {
		return nil, fmt.Errorf("%w: %q, please be more specific", ErrDisambiguation, title)
	}

	limited, words := limitWords(text, c.cfg.MaxWords)
	slog.Debug("article fetched", "title", title, "words", words)

	return &Article{
		Title:     title,
		URL:       pageURL,
		Text:      limited,
		Summary:   summarize(limited),
		WordCount: words,
	}, nil
}

func (c *Client) get(ctx context.Context, target, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("response body exceeded %d bytes", maxBodySize)
	}
	return body, nil
}
