package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"golang-market-insight/internal/executor/config"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

// NewAIRepository builds the provider selected by ai.provider.
// It returns nil for "none", in which case every insight uses the fallback template.
func NewAIRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (AIRepository, error) {
	switch cfg.AI.Provider {
	case common.AIProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.AI.Gemini.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		return NewGeminiAIRepository(cfg, log, client)
	case common.AIProviderOpenAI:
		return NewOpenAIRepository(cfg, log), nil
	case common.AIProviderClaude:
		return NewClaudeAIRepository(cfg, log), nil
	case common.AIProviderNone, "":
		return nil, nil
	default:
		return nil, common.NewValidationError("ai.provider", fmt.Sprintf("unknown provider %q", cfg.AI.Provider))
	}
}

// classifyProviderError maps an SDK or transport error onto the provider taxonomy.
// SDK errors carry the HTTP status in their message, so matching is textual.
func classifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", common.ErrProviderTimeout, provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", common.ErrProviderTimeout, provider, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: %s: %v", common.ErrProviderRateLimited, provider, err)
	case strings.Contains(msg, "503"),
		strings.Contains(msg, "529"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "UNAVAILABLE"):
		return fmt.Errorf("%w: %s: %v", common.ErrProviderTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrProviderError, provider, err)
}

// classifyProviderStatus does the same for raw HTTP providers.
func classifyProviderStatus(provider string, code int, body string) error {
	switch {
	case code == 429:
		return fmt.Errorf("%w: %s returned %d", common.ErrProviderRateLimited, provider, code)
	case code == 408, code == 503, code == 504, code == 529:
		return fmt.Errorf("%w: %s returned %d", common.ErrProviderTimeout, provider, code)
	default:
		return fmt.Errorf("%w: %s returned %d: %s", common.ErrProviderError, provider, code, truncate(body, 200))
	}
}
