// Package failure оценивает вероятность отказа станка по истории замеров.
package failure

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/features"
	"github.com/xela07ax/pdm-core/internal/inference"
)

const (
	// MinHistory — меньше замеров модель не вызывается.
	MinHistory = 10
	// HighConfidenceHistory — строго больше замеров дает высокую уверенность.
	HighConfidenceHistory = 50
	// FactorWindow — сколько последних замеров смотрят факторы риска.
	FactorWindow = 10
	// DefaultFeatureWindow — окно трендовых признаков для модели.
	DefaultFeatureWindow = 10
	// MaintenanceHorizon — при меньшем остатке ресурса рекомендуем обслуживание.
	MaintenanceHorizon = 168.0
)

// Scorer — то, что нужно оценщику от шлюза инференса.
type Scorer interface {
	Score(ctx context.Context, req inference.Request) domain.ScoreResult
}

type Estimator struct {
	scorer        Scorer
	featureWindow int
	logger        *zap.Logger
	now           func() time.Time
}

func NewEstimator(scorer Scorer, featureWindow int, logger *zap.Logger) *Estimator {
	if featureWindow <= 0 {
		featureWindow = DefaultFeatureWindow
	}
	return &Estimator{
		scorer:        scorer,
		featureWindow: featureWindow,
		logger:        logger.Named("failure"),
		now:           time.Now,
	}
}

// Estimate всегда возвращает корректный прогноз. При короткой истории
// модель не вызывается и уверенность низкая.
func (e *Estimator) Estimate(ctx context.Context, machineID string, history []domain.SensorReading) domain.FailurePrediction {
	pred := domain.FailurePrediction{
		MachineID:           machineID,
		Timestamp:           e.now().UTC(),
		Confidence:          domain.ConfidenceLow,
		ContributingFactors: []domain.Factor{},
		RiskLevel:           domain.RiskLow,
	}
	if len(history) < MinHistory {
		e.logger.Debug("insufficient history",
			zap.String("machine_id", machineID), zap.Int("readings", len(history)))
		return pred
	}

	vector := features.Summarize(history, e.featureWindow).Vector()
	score := e.scorer.Score(ctx, inference.Request{
		Model:           inference.ModelFailure,
		Features:        vector,
		MachineID:       machineID,
		UltraLowLatency: true,
	})

	pred.FailureProbability = score.Score
	pred.FallbackUsed = score.FallbackUsed
	if hours, ok := estimatedHours(score); ok {
		pred.EstimatedHoursToFailure = &hours
		pred.MaintenanceRecommended = hours < MaintenanceHorizon
	}
	pred.Confidence = domain.ConfidenceMedium
	if len(history) > HighConfidenceHistory {
		pred.Confidence = domain.ConfidenceHigh
	}
	pred.ContributingFactors = Factors(history)
	pred.RiskLevel = RiskLevelFor(pred.FailureProbability)
	return pred
}

func estimatedHours(score domain.ScoreResult) (float64, bool) {
	if score.FallbackUsed {
		return 0, false
	}
	// Часы берутся из ответа бэкенда как есть
	if v, ok := score.Outputs["estimated_hours"]; ok {
		return v, true
	}
	if len(score.Predictions) > 1 {
		return score.Predictions[1], true
	}
	return 0, false
}

// Factors проверяет последние FactorWindow замеров.
func Factors(history []domain.SensorReading) []domain.Factor {
	out := []domain.Factor{}
	if len(history) == 0 {
		return out
	}
	recent := history
	if len(recent) > FactorWindow {
		recent = recent[len(recent)-FactorWindow:]
	}

	var tempSum, vibSum float64
	powerSpikes := 0
	for _, r := range recent {
		tempSum += r.Temperature
		vibSum += r.Vibration
		if r.PowerConsumption > 75 {
			powerSpikes++
		}
	}
	n := float64(len(recent))

	if tempSum/n > 80 {
		out = append(out, domain.FactorSustainedHighTemperature)
	}
	if vibSum/n > 0.7 {
		out = append(out, domain.FactorExcessiveVibration)
	}
	if powerSpikes > 5 {
		out = append(out, domain.FactorPowerInstability)
	}
	return out
}

func RiskLevelFor(p float64) domain.RiskLevel {
	switch {
	case p >= 0.8:
		return domain.RiskCritical
	case p >= 0.6:
		return domain.RiskHigh
	case p >= 0.4:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
