package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BarAvidan1996/eilam-sub000/pkg/config"
)

var ErrEmptyCompletion = errors.New("llm returned no completion")

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
	// Model overrides the client's default model when set.
	Model string
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator is a single-turn chat completion provider.
type Generator interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type Provider interface {
	Generator
	Embedder
}

type Options struct {
	APIKey            string
	BaseURL           string
	Model             string
	EmbeddingModel    string
	Temperature       float32
	MaxTokens         int
	CompletionTimeout time.Duration
	EmbeddingTimeout  time.Duration
	// RetryAttempts is the number of tries per provider call. Request-path
	// providers keep the default of one so failures reach the caller as is.
	RetryAttempts int
}

func OptionsFromConfig(cfg config.LLMConfig) Options {
	return Options{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		EmbeddingModel:    cfg.EmbeddingModel,
		Temperature:       cfg.Temperature,
		MaxTokens:         cfg.MaxTokens,
		CompletionTimeout: time.Duration(cfg.TimeoutSec) * time.Second,
		EmbeddingTimeout:  15 * time.Second,
	}
}

// New builds the provider named in cfg with a single attempt per call.
func New(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	return NewWithOptions(ctx, cfg.Provider, OptionsFromConfig(cfg))
}

func NewWithOptions(ctx context.Context, provider string, opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return NewClient(opts), nil
	case "gemini":
		return NewGeminiClient(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

func (o Options) withDefaults() Options {
	if o.CompletionTimeout <= 0 {
		o.CompletionTimeout = 30 * time.Second
	}
	if o.EmbeddingTimeout <= 0 {
		o.EmbeddingTimeout = 15 * time.Second
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1000
	}
	if o.RetryAttempts < 1 {
		o.RetryAttempts = 1
	}
	return o
}
