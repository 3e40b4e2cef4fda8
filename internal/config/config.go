// Package config loads wikiflash settings from flags, an optional YAML file
// and WIKIFLASH_ environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/wikiflash/internal/content"
	"github.com/conorfennell/wikiflash/internal/generator"
	"github.com/conorfennell/wikiflash/internal/session"
)

const envPrefix = "WIKIFLASH_"

type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Storage   StorageConfig    `koanf:"storage"`
	Study     StudyConfig      `koanf:"study"`
	Generator generator.Config `koanf:"generator"`
	Content   content.Config   `koanf:"content"`
	Log       LogConfig        `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type StorageConfig struct {
	Path     string `koanf:"path" validate:"required"`
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

type StudyConfig struct {
	NewCardLimit int `koanf:"new_card_limit" validate:"min=0,max=100"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// flagKeys maps each config flag onto its koanf key.
var flagKeys = map[string]string{
	"addr":                  "server.addr",
	"shutdown-timeout":      "server.shutdown_timeout",
	"db":                    "storage.path",
	"repos-dir":             "storage.repos_dir",
	"new-card-limit":        "study.new_card_limit",
	"llm-base-url":          "generator.base_url",
	"llm-api-key":           "generator.api_key",
	"llm-model":             "generator.model",
	"llm-max-retries":       "generator.max_retries",
	"llm-timeout":           "generator.timeout",
	"llm-temperature":       "generator.temperature",
	"llm-max-tokens":        "generator.max_tokens",
	"wiki-api-url":          "content.api_url",
	"wiki-article-url":      "content.article_url",
	"wiki-max-words":        "content.max_words",
	"wiki-user-agent":       "content.user_agent",
	"wiki-requests-per-sec": "content.requests_per_second",
	"wiki-timeout":          "content.timeout",
	"log-level":             "log.level",
	"log-format":            "log.format",
}

// RegisterFlags adds the config flags, carrying the defaults, to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	gen := generator.DefaultConfig()
	wiki := content.DefaultConfig()

	fs.String("config", "", "Path to a YAML config file")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	fs.String("db", "wikiflash.db", "Path to the SQLite database file")
	fs.String("repos-dir", "repos", "Directory for cloned git sources")
	fs.Int("new-card-limit", session.DefaultNewCardLimit, "Maximum new cards per study session")
	fs.String("llm-base-url", gen.BaseURL, "OpenAI-compatible API base URL")
	fs.String("llm-api-key", "", "API key for the flashcard model (or GROQ_API_KEY)")
	fs.String("llm-model", gen.Model, "Model used to generate flashcards")
	fs.Int("llm-max-retries", gen.MaxRetries, "Generation attempts before giving up")
	fs.Duration("llm-timeout", gen.Timeout, "Timeout for a single generation request")
	fs.Float32("llm-temperature", gen.Temperature, "Sampling temperature")
	fs.Int("llm-max-tokens", gen.MaxTokens, "Maximum tokens in a generation reply")
	fs.String("wiki-api-url", wiki.APIURL, "MediaWiki API endpoint")
	fs.String("wiki-article-url", wiki.ArticleURL, "Base URL of article pages")
	fs.Int("wiki-max-words", wiki.MaxWords, "Maximum words of article text kept")
	fs.String("wiki-user-agent", wiki.UserAgent, "User-Agent sent to Wikipedia")
	fs.Float64("wiki-requests-per-sec", wiki.RequestsPerSecond, "Wikipedia request rate limit")
	fs.Duration("wiki-timeout", wiki.Timeout, "Timeout for a single Wikipedia request")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
}

// Load builds the config from a parsed flag set. Precedence from lowest to
// highest: flag defaults, the --config file, WIKIFLASH_* variables, flags
// given on the command line.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// WIKIFLASH_GENERATOR__API_KEY becomes generator.api_key.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys no other source set.
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Generator.APIKey == "" {
		cfg.Generator.APIKey = os.Getenv("GROQ_API_KEY")
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Logger builds the process logger described by the log settings.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
