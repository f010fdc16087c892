package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/analysis"
	"github.com/spacesedan/moodlens/internal/models"
)

// GatewayClient classifies comments through an OpenAI-compatible chat
// completions endpoint.
type GatewayClient struct {
	Client openai.Client
	model  string
}

// NewGatewayClient builds a client with the SDK's own retries disabled;
// rate-limit handling belongs to the analyzer.
func NewGatewayClient(cfg config.GatewayConfig, timeout time.Duration) *GatewayClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", USER_AGENT),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	slog.Info("[GatewayClient] Client initialized",
		slog.String("model", cfg.Model),
		slog.String("base_url", cfg.BaseURL),
		slog.Duration("timeout", timeout))

	return &GatewayClient{
		Client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// ClassifyBatch sends one batch prompt and returns the raw completion text.
func (g *GatewayClient) ClassifyBatch(ctx context.Context, comments []string) (string, error) {
	system, user := analysis.BatchPrompt(comments)
	return g.complete(ctx, system, user)
}

// Classify asks for a single-word label. The score is always 1, so the
// result is meant for a ternary policy.
func (g *GatewayClient) Classify(ctx context.Context, text string) (models.RawClassification, error) {
	system, user := analysis.SinglePrompt(text)
	content, err := g.complete(ctx, system, user)
	if err != nil {
		return models.RawClassification{}, err
	}
	return models.RawClassification{Label: firstWord(content), Score: 1}, nil
}

// Ping lists models to confirm the gateway is reachable and the key works.
func (g *GatewayClient) Ping(ctx context.Context) error {
	if _, err := g.Client.Models.List(ctx); err != nil {
		return mapGatewayError(ctx, err)
	}
	return nil
}

func (g *GatewayClient) complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	resp, err := g.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		err = mapGatewayError(ctx, err)
		slog.Warn("[GatewayClient] Completion failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", analysis.ErrUpstream)
	}

	slog.Debug("[GatewayClient] Completion received",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int64("total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}

func mapGatewayError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return analysis.StatusError(apiErr.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: %w", analysis.ErrUpstream, err)
}

func firstWord(content string) string {
	fields := strings.Fields(strings.ToLower(content))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,!?:;\"'`*")
}
