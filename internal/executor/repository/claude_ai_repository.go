package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"golang-market-insight/internal/executor/config"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

type claudeAIRepository struct {
	client         *anthropic.Client
	cfg            *config.Config
	logger         *logger.Logger
	requestLimiter *rate.Limiter
}

// NewClaudeAIRepository creates an AIRepository backed by the Anthropic messages API.
// SDK-level retries are disabled; the insight generator owns the retry policy.
func NewClaudeAIRepository(cfg *config.Config, log *logger.Logger) AIRepository {
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.AI.Claude.APIKey),
		option.WithMaxRetries(0),
	)
	secondsPerRequest := time.Minute / time.Duration(cfg.AI.Claude.MaxRequestPerMinute)

	return &claudeAIRepository{
		client:         &client,
		cfg:            cfg,
		logger:         log,
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 1),
	}
}

func (r *claudeAIRepository) Provider() string { return common.AIProviderClaude }

func (r *claudeAIRepository) Model() string { return r.cfg.AI.Claude.Model }

func (r *claudeAIRepository) GenerateInsight(ctx context.Context, prompt string) (string, error) {
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return "", classifyProviderError(r.Provider(), err)
	}

	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.Model()),
		MaxTokens: int64(r.cfg.AI.Claude.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to call Claude API", logger.ErrorField(err), logger.StringField("model", r.Model()))
		return "", classifyProviderError(r.Provider(), err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: empty response from Claude API", common.ErrProviderError)
	}
	return text.String(), nil
}
