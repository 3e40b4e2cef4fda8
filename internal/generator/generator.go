// Package generator turns reference text into question/answer pairs using an
// OpenAI-compatible chat completion API.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sashabaranov/go-openai"

	"github.com/conorfennell/wikiflash/internal/domain"
)

const (
	MinCards = 1
	MaxCards = 50
)

var (
	ErrRateLimited     = errors.New("generator: rate limit exceeded, try again in a moment")
	ErrInvalidResponse = errors.New("generator: invalid response from model")
	ErrNotConfigured   = errors.New("generator: api key is not configured")
	ErrInvalidRequest  = errors.New("generator: invalid request")
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wikiflash_generator_requests_total",
	Help: "Chat completion attempts by result",
}, []string{"result"})

// Config configures the chat completion client. The defaults target Groq.
type Config struct {
	BaseURL     string        `koanf:"base_url" validate:"required,url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model" validate:"required"`
	MaxRetries  int           `koanf:"max_retries" validate:"min=1,max=10"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	Temperature float32       `koanf:"temperature" validate:"min=0,max=2"`
	MaxTokens   int           `koanf:"max_tokens" validate:"min=256"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.groq.com/openai/v1",
		Model:       "llama-3.3-70b-versatile",
		MaxRetries:  3,
		Timeout:     60 * time.Second,
		Temperature: 0.7,
		MaxTokens:   4000,
	}
}

// Generator produces flashcards from text.
type Generator struct {
	client  *openai.Client
	cfg     Config
	backoff time.Duration // delay before the second attempt, doubled after each
}

func New(cfg Config) *Generator {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	return &Generator{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		backoff: time.Second,
	}
}

// Generate asks the model for count flashcards about topic drawn from content.
//
// Transport errors and short replies are retried with exponential backoff.
// Replies that cannot be parsed fail immediately with ErrInvalidResponse. If
// every attempt returns fewer cards than requested, the last reply is used.
func (g *Generator) Generate(ctx context.Context, content, topic string, count int) ([]domain.QA, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if count < MinCards || count > MaxCards {
		return nil, fmt.Errorf("%w: card count must be between %d and %d", ErrInvalidRequest, MinCards, MaxCards)
	}
	if g.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	req := openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(content, topic, count)},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	var (
		lastErr error
		short   []domain.QA
	)
	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := g.backoff << (attempt - 1)
			slog.Debug("flashcard generation retrying", "attempt", attempt+1, "wait_time", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		cards, err := g.complete(ctx, req, count)
		if errors.Is(err, ErrInvalidResponse) {
			requestsTotal.WithLabelValues("invalid").Inc()
			return nil, err
		}
		if err != nil {
			requestsTotal.WithLabelValues("error").Inc()
			lastErr = err
			continue
		}

		if len(cards) < count {
			requestsTotal.WithLabelValues("short").Inc()
			slog.Warn("model returned fewer cards than requested", "requested", count, "got", len(cards))
			short = cards
			lastErr = nil
			continue
		}

		requestsTotal.WithLabelValues("ok").Inc()
		return cards, nil
	}

	if short != nil {
		return short, nil
	}
	return nil, fmt.Errorf("failed to generate flashcards after %d attempts: %w", g.cfg.MaxRetries, lastErr)
}

func (g *Generator) complete(ctx context.Context, req openai.ChatCompletionRequest, count int) ([]domain.QA, error) {
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, errors.New("no content received from model")
	}
	return parseCards(resp.Choices[0].Message.Content, count)
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
