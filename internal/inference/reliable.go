package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/pdm-core/internal/telemetry"
)

// ReliabilityConfig — параметры защиты удаленного бэкенда.
type ReliabilityConfig struct {
	Name                string
	RateLimit           float64 // запросов в секунду
	Burst               int
	Attempts            uint
	MaxRequests         uint32 // пропускная способность в half-open
	Interval            time.Duration
	OpenTimeout         time.Duration // время, через которое CB попробует "закрыться"
	ConsecutiveFailures uint32
}

func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Name:                "inference",
		RateLimit:           100,
		Burst:               20,
		Attempts:            3,
		MaxRequests:         3,
		Interval:            5 * time.Second,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// ReliableBackend оборачивает бэкенд: лимитер -> предохранитель -> повторы.
// Все повторы ограничены дедлайном вызывающего.
type ReliableBackend struct {
	next     Backend
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
}

func NewReliableBackend(next Backend, cfg ReliabilityConfig, metrics *telemetry.Metrics, logger *zap.Logger) *ReliableBackend {
	logger = logger.With(zap.String("mod", "reliability"), zap.String("backend", cfg.Name))
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	trip := cfg.ConsecutiveFailures

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Больше N ошибок подряд — открываемся
			return counts.ConsecutiveFailures > trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return &ReliableBackend{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		attempts: cfg.Attempts,
	}
}

func (w *ReliableBackend) Predict(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return BackendResponse{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	res, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Бэкенд сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		var out BackendResponse
		retryErr := r.Do(func() error {
			var callErr error
			out, callErr = w.next.Predict(ctx, req)
			return callErr
		})
		return out, retryErr
	})
	if err != nil {
		return BackendResponse{}, err
	}
	return res.(BackendResponse), nil
}

// State — текущее состояние предохранителя.
func (w *ReliableBackend) State() gobreaker.State {
	return w.cb.State()
}
