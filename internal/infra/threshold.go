package infra

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SignalDetection — имя сигнала смены порога аномалии.
const SignalDetection = "detection"

// ThresholdWatcher держит порог аномалии в памяти (L1) и синхронизирует его с Redis (L2).
// Оператор меняет порог командой PUBLISH pdm:config:threshold-signal "detection:0.8".
type ThresholdWatcher struct {
	bits   atomic.Uint64
	rdb    *redis.Client
	def    float64
	logger *zap.Logger
}

func NewThresholdWatcher(rdb *redis.Client, def float64, logger *zap.Logger) *ThresholdWatcher {
	w := &ThresholdWatcher{rdb: rdb, def: def, logger: logger.Named("threshold")}
	w.bits.Store(math.Float64bits(def))
	return w
}

// Detection — текущий порог; без Redis всегда значение по умолчанию.
func (w *ThresholdWatcher) Detection() float64 {
	return math.Float64frombits(w.bits.Load())
}

// Set меняет порог локально. Значения вне (0, 1] отклоняются.
func (w *ThresholdWatcher) Set(v float64) error {
	if v <= 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("threshold %v out of range (0, 1]", v)
	}
	old := math.Float64frombits(w.bits.Swap(math.Float64bits(v)))
	if old != v {
		w.logger.Info("detection threshold changed", zap.Float64("from", old), zap.Float64("to", v))
	}
	return nil
}

// Init загружает порог из Redis, предварительно засеяв значение по умолчанию.
func (w *ThresholdWatcher) Init(ctx context.Context) error {
	if w.rdb == nil {
		return nil
	}
	if err := WarmupValue(ctx, w.rdb, w.logger, RedisKeyDetectionThreshold, RedisKeyLockThreshold,
		strconv.FormatFloat(w.def, 'f', -1, 64)); err != nil {
		w.logger.Warn("threshold warm-up failed", zap.Error(err))
	}

	raw, err := w.rdb.Get(ctx, RedisKeyDetectionThreshold).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load threshold: %w", err)
	}
	return w.apply(raw)
}

// StartListener блокируется до отмены ctx.
func (w *ThresholdWatcher) StartListener(ctx context.Context) {
	if w.rdb == nil {
		return
	}
	ListenStateResilient(ctx, w.rdb, w.logger, RedisChanThreshold,
		func() error { return w.Init(ctx) },
		func(name, value string) {
			if name != SignalDetection {
				w.logger.Debug("ignoring signal", zap.String("name", name))
				return
			}
			if err := w.apply(value); err != nil {
				w.logger.Error("bad threshold signal", zap.String("value", value), zap.Error(err))
				return
			}
			// L2 тоже обновляем, чтобы новые инстансы стартовали с актуальным порогом
			if err := w.rdb.Set(ctx, RedisKeyDetectionThreshold, value, 0).Err(); err != nil {
				w.logger.Warn("failed to persist threshold", zap.Error(err))
			}
		},
	)
}

func (w *ThresholdWatcher) apply(raw string) error {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse threshold %q: %w", raw, err)
	}
	return w.Set(v)
}
