package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/telemetry"
)

const (
	DefaultTimeout       = 2 * time.Second
	DefaultTargetLatency = 50 * time.Millisecond
)

// Request — запрос на оценку от конвейера.
type Request struct {
	Model           string
	Features        domain.FeatureVector
	MachineID       string
	LatencyHint     time.Duration // 0 — подсказка из реестра
	UltraLowLatency bool
}

type Option func(*Gateway)

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithTargetLatency(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.target = d
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// Gateway — единая точка вызова моделей. Никогда не возвращает ошибку:
// любой сбой превращается в fallback-ответ за время не больше таймаута.
type Gateway struct {
	registry *Registry
	remote   Backend
	timeout  time.Duration
	target   time.Duration
	metrics  *telemetry.Metrics
	logger   *zap.Logger

	mu           sync.Mutex
	calls        int64
	fallbacks    int64
	completed    int64
	avgLatencyMs float64
}

// NewGateway собирает шлюз. remote может быть nil, тогда работают только локальные модели.
func NewGateway(registry *Registry, remote Backend, logger *zap.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		registry: registry,
		remote:   remote,
		timeout:  DefaultTimeout,
		target:   DefaultTargetLatency,
		logger:   logger.Named("inference"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = telemetry.NewMetrics(nil)
	}
	return g
}

type outcome struct {
	resp BackendResponse
	err  error
}

func (g *Gateway) Score(ctx context.Context, req Request) domain.ScoreResult {
	start := time.Now()

	spec, err := g.registry.Lookup(req.Model)
	if err != nil {
		return g.fallback(req, start, err)
	}
	backend := g.route(spec)
	if backend == nil {
		return g.fallback(req, start, ErrNoBackend)
	}

	hint := req.LatencyHint
	if hint == 0 {
		hint = spec.LatencyHint
	}
	breq := BackendRequest{
		Model:           spec.RemoteID,
		InputFeatures:   req.Features,
		MachineID:       req.MachineID,
		LatencyHintMs:   hint.Milliseconds(),
		UltraLowLatency: req.UltraLowLatency,
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Канал буферизован: горутина не зависнет, даже если мы ушли по таймауту
	done := make(chan outcome, 1)
	go func() {
		// Паника бэкенда превращается в обычный откат, процесс живет дальше
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrBackendPanic, r)}
			}
		}()
		resp, err := backend.Predict(ctx, breq)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return g.fallback(req, start, out.err)
		}
		return g.success(spec, req, out.resp, start)
	case <-ctx.Done():
		return g.fallback(req, start, ctx.Err())
	}
}

// Stats — агрегаты для отчета о производительности.
func (g *Gateway) Stats() domain.InferenceStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.InferenceStats{
		TotalCalls:      g.calls,
		Fallbacks:       g.fallbacks,
		AvgLatencyMs:    g.avgLatencyMs,
		TargetLatencyMs: float64(g.target) / float64(time.Millisecond),
	}
}

func (g *Gateway) route(spec ModelSpec) Backend {
	if spec.Local != nil {
		return NewLocalBackend(spec.Local)
	}
	return g.remote
}

func (g *Gateway) success(spec ModelSpec, req Request, resp BackendResponse, start time.Time) domain.ScoreResult {
	latency := time.Since(start)

	score, ok := resp.Fields[spec.ScoreField]
	if !ok && len(resp.Predictions) > 0 {
		score = resp.Predictions[0]
	}

	g.mu.Lock()
	g.calls++
	g.completed++
	// Скользящее среднее по успешным ответам
	ms := float64(latency) / float64(time.Millisecond)
	g.avgLatencyMs += (ms - g.avgLatencyMs) / float64(g.completed)
	g.mu.Unlock()

	g.metrics.InferenceTotal.WithLabelValues(req.Model, "ok").Inc()
	g.metrics.InferenceDuration.WithLabelValues(req.Model).Observe(latency.Seconds())

	return domain.ScoreResult{
		Score:        score,
		Confidence:   resp.Confidence,
		Latency:      latency,
		FallbackUsed: false,
		Predictions:  resp.Predictions,
		Outputs:      resp.Fields,
		Labels:       resp.Labels,
	}
}

func (g *Gateway) fallback(req Request, start time.Time, err error) domain.ScoreResult {
	latency := time.Since(start)

	g.mu.Lock()
	g.calls++
	g.fallbacks++
	g.mu.Unlock()

	g.metrics.InferenceTotal.WithLabelValues(req.Model, "fallback").Inc()
	g.metrics.InferenceDuration.WithLabelValues(req.Model).Observe(latency.Seconds())

	level := g.logger.Warn
	if errors.Is(err, context.Canceled) {
		level = g.logger.Debug
	}
	level("inference fallback",
		zap.String("model", req.Model),
		zap.String("machine_id", req.MachineID),
		zap.Duration("latency", latency),
		zap.Error(err),
	)
	return domain.FallbackScore(latency)
}
