package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/infra"
)

// Publisher — часть redis.Client, нужная приемнику.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink публикует алерт JSON-ом в канал pdm:alerts:<type>.
type RedisSink struct {
	rdb Publisher
}

func NewRedisSink(rdb Publisher) *RedisSink {
	return &RedisSink{rdb: rdb}
}

func (s *RedisSink) Send(ctx context.Context, alert domain.AlertRecord) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("redis sink: marshal alert: %w", err)
	}
	if err := s.rdb.Publish(ctx, infra.AlertChannel(string(alert.Type)), payload).Err(); err != nil {
		return fmt.Errorf("redis sink: publish: %w", err)
	}
	return nil
}
