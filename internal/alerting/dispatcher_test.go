package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/telemetry"
)

type recordingSink struct {
	sent []domain.AlertRecord
	err  error
}

func (s *recordingSink) Send(_ context.Context, a domain.AlertRecord) error {
	s.sent = append(s.sent, a)
	return s.err
}

func anomalyResult(score float64, anomalous bool, typ domain.AnomalyType) domain.AnomalyResult {
	return domain.AnomalyResult{
		MachineID:    "lathe-3",
		Timestamp:    time.Unix(100, 0),
		AnomalyScore: score,
		IsAnomaly:    anomalous,
		AnomalyType:  typ,
	}
}

func TestDispatcher_OnAnomaly(t *testing.T) {
	tests := []struct {
		name         string
		result       domain.AnomalyResult
		wantAlert    bool
		wantSeverity domain.Severity
		wantMessage  string
	}{
		{
			name:   "normal result raises nothing",
			result: anomalyResult(0.4, false, domain.AnomalyNone),
		},
		{
			name:         "high score is high severity",
			result:       anomalyResult(0.9, true, domain.AnomalyOverheating),
			wantAlert:    true,
			wantSeverity: domain.SeverityHigh,
			wantMessage:  "Anomaly detected: overheating",
		},
		{
			name:         "score at 0.85 stays medium",
			result:       anomalyResult(0.85, true, domain.AnomalyMechanicalStress),
			wantAlert:    true,
			wantSeverity: domain.SeverityMedium,
			wantMessage:  "Anomaly detected: mechanical_stress",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			d := NewDispatcher(sink, telemetry.NewMetrics(nil), zaptest.NewLogger(t))

			alert := d.OnAnomaly(context.Background(), tt.result)
			if !tt.wantAlert {
				assert.Nil(t, alert)
				assert.Empty(t, sink.sent)
				return
			}
			require.NotNil(t, alert)
			assert.Equal(t, domain.AlertAnomalyDetected, alert.Type)
			assert.Equal(t, tt.wantSeverity, alert.Severity)
			assert.Equal(t, tt.wantMessage, alert.Message)
			assert.Equal(t, "lathe-3", alert.MachineID)
			assert.NotEmpty(t, alert.ID)
			require.Len(t, sink.sent, 1)
			assert.Equal(t, *alert, sink.sent[0])
		})
	}
}

func TestDispatcher_OnFailure(t *testing.T) {
	hours := 36.0
	sink := &recordingSink{}
	d := NewDispatcher(sink, nil, zaptest.NewLogger(t))

	assert.Nil(t, d.OnFailure(context.Background(), domain.FailurePrediction{MachineID: "m1", FailureProbability: 0.7}))

	alert := d.OnFailure(context.Background(), domain.FailurePrediction{
		MachineID:               "m1",
		FailureProbability:      0.8,
		EstimatedHoursToFailure: &hours,
	})
	require.NotNil(t, alert)
	assert.Equal(t, domain.AlertFailurePrediction, alert.Type)
	assert.Equal(t, domain.SeverityCritical, alert.Severity)
	assert.Equal(t, "Failure probability: 80.00%", alert.Message)
	require.NotNil(t, alert.EstimatedHours)
	assert.Equal(t, 36.0, *alert.EstimatedHours)
	assert.Len(t, sink.sent, 1)
}

func TestDispatcher_SinkFailureStillReturnsAlert(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	d := NewDispatcher(sink, nil, zaptest.NewLogger(t))

	alert := d.OnAnomaly(context.Background(), anomalyResult(0.95, true, domain.AnomalyPowerSurge))
	require.NotNil(t, alert)
	assert.Len(t, sink.sent, 1)
}

func TestDispatcher_OneAlertPerCall(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, nil, zaptest.NewLogger(t))

	res := anomalyResult(0.95, true, domain.AnomalyGeneral)
	first := d.OnAnomaly(context.Background(), res)
	second := d.OnAnomaly(context.Background(), res)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, sink.sent, 2)
}
