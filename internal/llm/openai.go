package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/pkg/circuitbreaker"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
	"github.com/BarAvidan1996/eilam-sub000/pkg/retry"
)

// Client talks to the OpenAI chat and embedding endpoints.
type Client struct {
	client            *openai.Client
	model             string
	embeddingModel    string
	temperature       float32
	maxTokens         int
	completionTimeout time.Duration
	embeddingTimeout  time.Duration
	cb                *circuitbreaker.CircuitBreaker
	embedCB           *circuitbreaker.CircuitBreaker
	retryConfig       retry.Config
}

func NewClient(opts Options) *Client {
	opts = opts.withDefaults()

	clientConfig := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}

	// Rejected requests (4xx) say nothing about provider health.
	breakerConfig := circuitbreaker.Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenCalls:    5,
		SuccessThreshold: 2,
		Window:           time.Minute,
		IsFailure:        isTransient,
		Observer:         metrics.BreakerObserver(),
		Logger:           logger.GetLogger(),
	}

	retryConfig := retry.Config{
		MaxAttempts:    opts.RetryAttempts,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Retryable:      isTransient,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("provider", "openai"),
		zap.String("model", opts.Model),
		zap.String("embedding_model", opts.EmbeddingModel),
		zap.Int("retry_attempts", opts.RetryAttempts),
	)

	return &Client{
		client:            openai.NewClientWithConfig(clientConfig),
		model:             opts.Model,
		embeddingModel:    opts.EmbeddingModel,
		temperature:       opts.Temperature,
		maxTokens:         opts.MaxTokens,
		completionTimeout: opts.CompletionTimeout,
		embeddingTimeout:  opts.EmbeddingTimeout,
		cb:                circuitbreaker.NewCircuitBreaker("openai_chat", breakerConfig),
		embedCB:           circuitbreaker.NewCircuitBreaker("openai_embedding", breakerConfig),
		retryConfig:       retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.completionTimeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return retry.Permanent(ErrEmptyCompletion)
			}

			logger.Debug("LLM completion generated",
				zap.String("model", model),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
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

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const batchSize = 100
	embeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := min(i+batchSize, len(texts))
		batch, err := c.embed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

func (c *Client) embed(ctx context.Context, input []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.embeddingTimeout)
	defer cancel()

	var embeddings [][]float32

	err := c.embedCB.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: input,
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Data) != len(input) {
				return retry.Permanent(fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(input)))
			}

			embeddings = make([][]float32, len(resp.Data))
			for _, data := range resp.Data {
				vec := make([]float32, len(data.Embedding))
				copy(vec, data.Embedding)
				embeddings[data.Index] = vec
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return embeddings, nil
}

// isTransient reports whether an OpenAI error is worth retrying. Client-side
// rejections (bad request, context length, auth) are returned immediately so
// the caller can react to them.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
