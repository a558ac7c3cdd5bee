// Package pipeline связывает компоненты: окно признаков, инференс,
// классификацию, прогноз отказов, алерты и журнал.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/pdm-core/internal/alerting"
	"github.com/xela07ax/pdm-core/internal/anomaly"
	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/failure"
	"github.com/xela07ax/pdm-core/internal/features"
	"github.com/xela07ax/pdm-core/internal/history"
	"github.com/xela07ax/pdm-core/internal/inference"
	"github.com/xela07ax/pdm-core/internal/telemetry"
)

// DefaultHistoryLimit — сколько замеров запрашивать для прогноза отказа.
const DefaultHistoryLimit = 100

// SensorHistoryProvider отдает историю замеров станка от старых к новым.
type SensorHistoryProvider interface {
	RecentReadings(ctx context.Context, machineID string, limit int) ([]domain.SensorReading, error)
}

// ThresholdSource отдает текущий порог аномалии.
type ThresholdSource interface {
	Detection() float64
}

// StaticThreshold — неизменяемый порог.
type StaticThreshold float64

func (t StaticThreshold) Detection() float64 { return float64(t) }

type Option func(*Pipeline)

// WithHistoryProvider подменяет источник истории (по умолчанию — окно признаков).
func WithHistoryProvider(p SensorHistoryProvider) Option {
	return func(pl *Pipeline) { pl.provider = p }
}

func WithThresholds(t ThresholdSource) Option {
	return func(pl *Pipeline) { pl.thresholds = t }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithFailureEvery включает прогноз отказа в Observe каждые n замеров станка.
func WithFailureEvery(n int) Option {
	return func(pl *Pipeline) { pl.failureEvery = n }
}

func WithHistoryLimit(n int) Option {
	return func(pl *Pipeline) {
		if n > 0 {
			pl.historyLimit = n
		}
	}
}

// Pipeline не держит глобальной блокировки: замеры разных станков идут параллельно,
// единственная координация — мьютекс буфера станка в окне.
type Pipeline struct {
	window     *features.Window
	scorer     failure.Scorer
	estimator  *failure.Estimator
	dispatcher *alerting.Dispatcher
	history    *history.Store
	provider   SensorHistoryProvider
	thresholds ThresholdSource
	metrics    *telemetry.Metrics
	logger     *zap.Logger

	historyLimit int
	failureEvery int
	observed     sync.Map // machineID -> *atomic.Uint64
	now          func() time.Time
}

func New(
	window *features.Window,
	scorer failure.Scorer,
	estimator *failure.Estimator,
	dispatcher *alerting.Dispatcher,
	store *history.Store,
	logger *zap.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		window:       window,
		scorer:       scorer,
		estimator:    estimator,
		dispatcher:   dispatcher,
		history:      store,
		provider:     window,
		thresholds:   StaticThreshold(anomaly.DefaultThreshold),
		logger:       logger.Named("pipeline"),
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = telemetry.NewMetrics(nil)
	}
	return p
}

// Detection — итог обработки одного замера.
type Detection struct {
	Result domain.AnomalyResult `json:"result"`
	Score  domain.ScoreResult   `json:"score"`
	Alert  *domain.AlertRecord  `json:"alert,omitempty"`
}

// Process обновляет окно, оценивает замер, классифицирует и при необходимости поднимает алерт.
func (p *Pipeline) Process(ctx context.Context, reading domain.SensorReading) Detection {
	start := time.Now()
	defer func() {
		p.metrics.StageDuration.WithLabelValues("process").Observe(time.Since(start).Seconds())
	}()

	if reading.Timestamp.IsZero() {
		reading.Timestamp = p.now().UTC()
	}
	p.window.Update(reading.MachineID, reading)

	score := p.scorer.Score(ctx, inference.Request{
		Model:     inference.ModelAnomaly,
		Features:  reading.PointFeatures(),
		MachineID: reading.MachineID,
	})
	result := anomaly.NewClassifier(p.thresholds.Detection()).Classify(reading, score.Score)

	outcome := "normal"
	if result.IsAnomaly {
		outcome = "anomaly"
		p.history.RecordAnomaly(result)
	}
	p.metrics.ReadingsTotal.WithLabelValues(outcome).Inc()

	alert := p.dispatcher.OnAnomaly(ctx, result)
	if alert != nil {
		p.history.RecordAlert(*alert)
	}
	return Detection{Result: result, Score: score, Alert: alert}
}

// Forecast — итог прогноза отказа.
type Forecast struct {
	Prediction domain.FailurePrediction `json:"prediction"`
	Alert      *domain.AlertRecord      `json:"alert,omitempty"`
}

// PredictFailure строит прогноз по истории станка. Ошибка источника истории
// не прерывает прогноз: используется то, что есть в окне.
func (p *Pipeline) PredictFailure(ctx context.Context, machineID string) Forecast {
	start := time.Now()
	defer func() {
		p.metrics.StageDuration.WithLabelValues("predict_failure").Observe(time.Since(start).Seconds())
	}()

	readings, err := p.provider.RecentReadings(ctx, machineID, p.historyLimit)
	if err != nil {
		p.logger.Warn("history provider failed, using in-memory window",
			zap.String("machine_id", machineID), zap.Error(err))
		readings, _ = p.window.RecentReadings(ctx, machineID, p.historyLimit)
	}

	pred := p.estimator.Estimate(ctx, machineID, readings)
	// Короткая история не доходит до модели и в журнал не пишется
	if pred.Confidence != domain.ConfidenceLow {
		p.history.RecordFailure(pred)
	}

	alert := p.dispatcher.OnFailure(ctx, pred)
	if alert != nil {
		p.history.RecordAlert(*alert)
	}
	return Forecast{Prediction: pred, Alert: alert}
}

// Observe — точка входа потока: обработка замера и периодический прогноз отказа.
func (p *Pipeline) Observe(ctx context.Context, reading domain.SensorReading) {
	det := p.Process(ctx, reading)
	if p.failureEvery <= 0 {
		return
	}
	// Len окна упирается в емкость, поэтому считаем замеры отдельно
	v, _ := p.observed.LoadOrStore(det.Result.MachineID, new(atomic.Uint64))
	if n := v.(*atomic.Uint64).Add(1); n%uint64(p.failureEvery) == 0 {
		p.PredictFailure(ctx, det.Result.MachineID)
	}
}

// AnalyzeVibration прогоняет спектр вибрации через модель vibration_analysis.
func (p *Pipeline) AnalyzeVibration(ctx context.Context, machineID string, samples []float64) domain.VibrationAnalysis {
	start := time.Now()
	defer func() {
		p.metrics.StageDuration.WithLabelValues("vibration").Observe(time.Since(start).Seconds())
	}()

	score := p.scorer.Score(ctx, inference.Request{
		Model:     inference.ModelVibration,
		Features:  samples,
		MachineID: machineID,
	})
	res := domain.VibrationAnalysis{
		MachineID:     machineID,
		BearingHealth: "unknown",
		FallbackUsed:  score.FallbackUsed,
	}
	if score.FallbackUsed {
		return res
	}
	if h, ok := score.Labels["bearing_health"]; ok {
		res.BearingHealth = h
	}
	res.DominantFrequency = score.Outputs["dominant_frequency"]
	if flag, ok := score.Outputs["is_anomalous"]; ok {
		res.IsAnomalous = flag != 0
	} else {
		res.IsAnomalous = score.Score > p.thresholds.Detection()
	}
	return res
}

// ControlDecision — решение контура управления; при сбое модели станок работает как раньше.
func (p *Pipeline) ControlDecision(ctx context.Context, machineID string, state domain.FeatureVector) domain.ControlDecision {
	start := time.Now()
	defer func() {
		p.metrics.StageDuration.WithLabelValues("control").Observe(time.Since(start).Seconds())
	}()

	score := p.scorer.Score(ctx, inference.Request{
		Model:     inference.ModelControl,
		Features:  state,
		MachineID: machineID,
	})
	dec := domain.ControlDecision{
		MachineID:    machineID,
		Action:       "maintain",
		Confidence:   score.Confidence,
		FallbackUsed: score.FallbackUsed,
	}
	if score.FallbackUsed {
		return dec
	}
	if a, ok := score.Labels["action"]; ok && a != "" {
		dec.Action = a
	}
	dec.Adjustment = score.Score
	return dec
}

// RecordMitigation фиксирует примененную меру и считает снижение выбросов.
func (p *Pipeline) RecordMitigation(action domain.MitigationAction) domain.MitigationAction {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.AppliedAt.IsZero() {
		action.AppliedAt = p.now().UTC()
	}
	action.CO2ReductionKg = action.ExpectedSavingsKW * domain.CO2PerKW
	p.history.RecordAction(action)
	p.logger.Info("mitigation recorded",
		zap.String("machine_id", action.MachineID),
		zap.String("action", action.ActionType),
		zap.Float64("savings_kw", action.ExpectedSavingsKW),
	)
	return action
}

func (p *Pipeline) Window() *features.Window { return p.window }

func (p *Pipeline) History() *history.Store { return p.history }
