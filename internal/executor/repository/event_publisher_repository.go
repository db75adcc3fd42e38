package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"golang-market-insight/internal/executor/dto"
	"golang-market-insight/pkg/common"
)

type redisEventPublisher struct {
	client *redis.Client
	maxLen int64
}

// NewRedisEventPublisher publishes run events to a capped Redis stream.
func NewRedisEventPublisher(client *redis.Client, maxLen int64) EventPublisher {
	return &redisEventPublisher{client: client, maxLen: maxLen}
}

func (p *redisEventPublisher) PublishRunEvent(ctx context.Context, event dto.RunEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: common.RedisStreamPipelineRunEvents,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"symbol":  event.Symbol,
			"status":  event.Status,
			"payload": payload,
		},
	}).Err()
}

type noopEventPublisher struct{}

// NewNoopEventPublisher discards events, for deployments without Redis.
func NewNoopEventPublisher() EventPublisher {
	return noopEventPublisher{}
}

func (noopEventPublisher) PublishRunEvent(context.Context, dto.RunEvent) error { return nil }
