// Package bridge turns a free-text prompt into an array of records by asking
// an OpenAI-compatible chat-completions API for JSON and recovering the array
// from whatever text comes back.
package bridge

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Flashl3opard/structify/internal/llm"
	"github.com/Flashl3opard/structify/internal/metrics"
)

const (
	DefaultModel = "llama-3.3-70b-versatile"

	DefaultInstruction = "You are a JSON generator. Return ONLY a valid JSON array. " +
		"No explanations, no markdown code blocks. " +
		"Format: [ { name: string, value: number, value2: number } ]"
)

// Config is fixed for the lifetime of a Bridge.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Instruction string

	// Timeout caps the wait for the upstream reply. Zero leaves it to the
	// caller's context.
	Timeout time.Duration

	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = llm.DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Instruction == "" {
		c.Instruction = DefaultInstruction
	}
	return c
}

// Converter is what the HTTP layer and the CLI depend on.
type Converter interface {
	Convert(ctx context.Context, prompt string) (Records, error)
}

// Bridge performs one upstream call per Convert and keeps no state between
// calls, so it is safe for concurrent use.
type Bridge struct {
	cfg    Config
	client llm.Client
}

// New builds a Bridge and its upstream client. A missing API key is not an
// error here; Convert reports it per call.
func New(cfg Config, logger *zap.Logger) (*Bridge, error) {
	cfg = cfg.withDefaults()

	client, err := llm.NewClient(llm.Config{
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey,
		UpstreamTimeout: cfg.Timeout,
		HTTPClient:      cfg.HTTPClient,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &Bridge{cfg: cfg, client: client}, nil
}

// Model returns the configured model identifier.
func (b *Bridge) Model() string { return b.cfg.Model }

// Instruction returns the configured system instruction.
func (b *Bridge) Instruction() string { return b.cfg.Instruction }

// Convert sends prompt upstream and returns the recovered array. Every
// failure is an *Error.
func (b *Bridge) Convert(ctx context.Context, prompt string) (Records, error) {
	if prompt == "" {
		return nil, PromptRequired()
	}
	if b.cfg.APIKey == "" {
		return nil, configurationError()
	}

	resp, err := b.client.ChatCompletion(ctx, &llm.ChatRequest{
		Model:       b.cfg.Model,
		Temperature: 0,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: b.cfg.Instruction},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fromClientError(err)
	}

	records, stage, err := Parse(resp.FirstContent())
	if err != nil {
		return nil, err
	}
	if stage == StageFallback {
		metrics.FallbackParsesTotal.Inc()
	}
	return records, nil
}

// Close releases idle upstream connections.
func (b *Bridge) Close() error {
	if closer, ok := b.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
