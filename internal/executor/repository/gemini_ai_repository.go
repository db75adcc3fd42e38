package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"golang-market-insight/internal/executor/config"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
	"golang-market-insight/pkg/ratelimit"
)

// geminiAIRepository is an AIRepository that uses the Google Gemini API.
type geminiAIRepository struct {
	cfg            *config.Config
	logger         *logger.Logger
	tokenLimiter   *ratelimit.TokenLimiter
	requestLimiter *rate.Limiter
	genAiClient    *genai.Client
}

// NewGeminiAIRepository creates a new instance of geminiAIRepository.
func NewGeminiAIRepository(cfg *config.Config, log *logger.Logger, genAiClient *genai.Client) (AIRepository, error) {
	secondsPerRequest := time.Minute / time.Duration(cfg.AI.Gemini.MaxRequestPerMinute)
	requestLimiter := rate.NewLimiter(rate.Every(secondsPerRequest), 1)

	tokenLimiter := ratelimit.NewTokenLimiter(cfg.AI.Gemini.MaxTokenPerMinute)

	return &geminiAIRepository{
		cfg:            cfg,
		logger:         log,
		requestLimiter: requestLimiter,
		tokenLimiter:   tokenLimiter,
		genAiClient:    genAiClient,
	}, nil
}

func (r *geminiAIRepository) Provider() string { return common.AIProviderGemini }

func (r *geminiAIRepository) Model() string { return r.cfg.AI.Gemini.Model }

func (r *geminiAIRepository) GenerateInsight(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	tokenResp, err := r.genAiClient.Models.CountTokens(ctx, r.Model(), contents, nil)
	if err != nil {
		return "", classifyProviderError(r.Provider(), fmt.Errorf("failed to count tokens: %w", err))
	}

	r.logger.DebugContext(ctx, "Gemini token count",
		logger.IntField("total_tokens", int(tokenResp.TotalTokens)),
		logger.IntField("remaining", r.tokenLimiter.GetRemaining()),
	)

	if int(tokenResp.TotalTokens) > r.cfg.AI.Gemini.MaxTokenPerMinute/2 {
		r.logger.WarnContext(ctx, "Token has exceeded 50% of the limit", logger.IntField("remaining", r.tokenLimiter.GetRemaining()))
	}

	if err := r.tokenLimiter.Wait(ctx, int(tokenResp.TotalTokens)); err != nil {
		return "", classifyProviderError(r.Provider(), fmt.Errorf("failed to wait for token limit: %w", err))
	}
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return "", classifyProviderError(r.Provider(), fmt.Errorf("failed to wait for request limit: %w", err))
	}

	resp, err := r.genAiClient.Models.GenerateContent(ctx, r.Model(), contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to generate content with Gemini", logger.ErrorField(err))
		return "", classifyProviderError(r.Provider(), err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no content", common.ErrProviderError)
	}
	return text, nil
}
