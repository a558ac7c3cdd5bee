package infra

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WarmupValue записывает значение по умолчанию в Redis, если ключа еще нет.
// Распределенная блокировка (SetNX) не дает инстансам греть ключ одновременно.
func WarmupValue(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	key string,
	lockKey string,
	value string,
) error {
	ok, err := rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return err // либо сеть, либо другой уже греет
	}

	created, err := rdb.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return err
	}
	if created {
		logger.Info("redis key was empty, seeded default",
			zap.String("key", key), zap.String("value", value))
	}
	return nil
}
