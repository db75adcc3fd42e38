package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"golang-market-insight/internal/executor/config"
	"golang-market-insight/internal/executor/dto"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

type openaiAIRepository struct {
	client         *http.Client
	cfg            *config.Config
	logger         *logger.Logger
	requestLimiter *rate.Limiter
}

func NewOpenAIRepository(cfg *config.Config, logger *logger.Logger) AIRepository {
	secondsPerRequest := time.Minute / time.Duration(cfg.AI.OpenAI.MaxRequestPerMinute)
	requestLimiter := rate.NewLimiter(rate.Every(secondsPerRequest), 1)

	return &openaiAIRepository{
		client: &http.Client{
			Timeout: 90 * time.Second,
		},
		cfg:            cfg,
		logger:         logger,
		requestLimiter: requestLimiter,
	}
}

func (r *openaiAIRepository) Provider() string { return common.AIProviderOpenAI }

func (r *openaiAIRepository) Model() string { return r.cfg.AI.OpenAI.Model }

func (r *openaiAIRepository) GenerateInsight(ctx context.Context, prompt string) (string, error) {
	if err := r.requestLimiter.Wait(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to wait for request limit", logger.ErrorField(err))
		return "", classifyProviderError(r.Provider(), err)
	}

	payload := dto.OpenAIChatRequest{
		Model: r.Model(),
		Messages: []dto.OpenAIChatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal payload: %v", common.ErrProviderError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.AI.OpenAI.BaseURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create new http request: %v", common.ErrProviderError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", r.cfg.AI.OpenAI.APIKey))

	r.logger.DebugContext(ctx, "Sending request to OpenAI API", logger.StringField("url", r.cfg.AI.OpenAI.BaseURL), logger.StringField("model", r.Model()))

	resp, err := r.client.Do(req)
	if err != nil {
		return "", classifyProviderError(r.Provider(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		r.logger.ErrorContext(ctx, "Received non-OK response from OpenAI API", logger.IntField("status_code", resp.StatusCode), logger.StringField("model", r.Model()))
		return "", classifyProviderStatus(r.Provider(), resp.StatusCode, string(body))
	}

	var chatResp dto.OpenAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode response body: %v", common.ErrProviderError, err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: openai: %s", common.ErrProviderError, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 || strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: no content found in OpenAI response", common.ErrProviderError)
	}

	return chatResp.Choices[0].Message.Content, nil
}
