package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/pkg/circuitbreaker"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
	"github.com/BarAvidan1996/eilam-sub000/pkg/retry"
)

// GeminiClient is the Gemini API counterpart of Client.
type GeminiClient struct {
	client            *genai.Client
	model             string
	embeddingModel    string
	temperature       float32
	maxTokens         int
	completionTimeout time.Duration
	embeddingTimeout  time.Duration
	cb                *circuitbreaker.CircuitBreaker
	retryConfig       retry.Config
}

func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	opts = opts.withDefaults()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Info("LLM client initialized",
		zap.String("provider", "gemini"),
		zap.String("model", opts.Model),
		zap.String("embedding_model", opts.EmbeddingModel),
		zap.Int("retry_attempts", opts.RetryAttempts),
	)

	return &GeminiClient{
		client:            client,
		model:             opts.Model,
		embeddingModel:    opts.EmbeddingModel,
		temperature:       opts.Temperature,
		maxTokens:         opts.MaxTokens,
		completionTimeout: opts.CompletionTimeout,
		embeddingTimeout:  opts.EmbeddingTimeout,
		cb: circuitbreaker.NewCircuitBreaker("gemini", circuitbreaker.Config{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
			HalfOpenCalls:    5,
			SuccessThreshold: 2,
			Window:           time.Minute,
			Observer:         metrics.BreakerObserver(),
			Logger:           logger.GetLogger(),
		}),
		retryConfig: retry.Config{
			MaxAttempts:    opts.RetryAttempts,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       3 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.completionTimeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}
	model := req.Model
	if model == "" {
		model = g.model
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
	}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.UserPrompt}}}}

	var result *CompletionResponse
	err := g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryConfig, func() error {
			resp, err := g.client.Models.GenerateContent(ctx, model, contents, genConfig)
			if err != nil {
				return fmt.Errorf("failed to generate content: %w", err)
			}
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				return retry.Permanent(ErrEmptyCompletion)
			}
			result = &CompletionResponse{Content: text}
			if resp.UsageMetadata != nil {
				result.Usage = Usage{
					PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(result.Usage.CompletionTokens))

	return result, nil
}

func (g *GeminiClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := g.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (g *GeminiClient) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.embeddingTimeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}

	var embeddings [][]float32
	err := g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryConfig, func() error {
			resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, nil)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Embeddings) != len(texts) {
				return retry.Permanent(fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Embeddings), len(texts)))
			}
			embeddings = make([][]float32, 0, len(resp.Embeddings))
			for _, e := range resp.Embeddings {
				embeddings = append(embeddings, e.Values)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}
