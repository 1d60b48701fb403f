// Package openai implements llmextract.Extractor against an
// OpenAI-compatible chat-completions endpoint.
package openai

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds the remote endpoint's connection settings.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Client is the concrete llmextract.Extractor.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient constructs a Client with defaults filled in.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}
