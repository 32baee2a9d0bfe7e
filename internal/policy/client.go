package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ChatClient interface for testability
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// GeneratorConfig tunes the chat backend.
type GeneratorConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float32
	MaxTokens         int
	GenerationTimeout time.Duration
	ProbeTimeout      time.Duration
	ProbeCooldown     time.Duration
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.6
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.GenerationTimeout == 0 {
		c.GenerationTimeout = 60 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.ProbeCooldown == 0 {
		c.ProbeCooldown = 30 * time.Second
	}
	return c
}

// Generator produces model replies over an OpenAI-compatible chat API.
// Availability is probed lazily and failures are cached for a cooldown
// window so an unreachable backend is not re-probed on every round.
type Generator struct {
	client ChatClient
	cfg    GeneratorConfig

	mu        sync.Mutex
	available bool
	lastProbe time.Time
}

// NewGenerator builds a Generator against the configured endpoint.
func NewGenerator(cfg GeneratorConfig) *Generator {
	cfg = cfg.withDefaults()
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Generator{client: openai.NewClientWithConfig(oc), cfg: cfg}
}

// NewGeneratorWithClient builds a Generator with a custom client (useful for testing)
func NewGeneratorWithClient(client ChatClient, cfg GeneratorConfig) *Generator {
	return &Generator{client: client, cfg: cfg.withDefaults()}
}

// Available reports whether the chat backend answers a model-listing
// probe. A failed probe is remembered for the cooldown window.
func (g *Generator) Available(ctx context.Context) bool {
	g.mu.Lock()
	if time.Since(g.lastProbe) < g.cfg.ProbeCooldown {
		ok := g.available
		g.mu.Unlock()
		return ok
	}
	g.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, g.cfg.ProbeTimeout)
	defer cancel()
	_, err := g.client.ListModels(probeCtx)

	g.mu.Lock()
	g.available = err == nil
	g.lastProbe = time.Now()
	ok := g.available
	g.mu.Unlock()
	return ok
}

// Turn is one message of a conversation.
type Turn struct {
	Role    string
	Content string
}

// Generate runs one chat completion over the conversation so far and
// returns the raw assistant reply.
func (g *Generator) Generate(ctx context.Context, turns []Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		msgs[i] = openai.ChatCompletionMessage{Role: t.Role, Content: t.Content}
	}

	genCtx, cancel := context.WithTimeout(ctx, g.cfg.GenerationTimeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(genCtx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    msgs,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.cfg.Model }
