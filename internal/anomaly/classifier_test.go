package anomaly

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/pdm-core/internal/domain"
)

func normalReading() domain.SensorReading {
	return domain.SensorReading{
		MachineID:        "press-01",
		Timestamp:        time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Temperature:      60,
		Vibration:        0.3,
		Pressure:         50,
		PowerConsumption: 40,
	}
}

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(DefaultThreshold)

	tests := []struct {
		name      string
		mutate    func(r *domain.SensorReading)
		score     float64
		anomalous bool
		wantType  domain.AnomalyType
	}{
		{name: "normal reading below threshold", score: 0.4, anomalous: false, wantType: domain.AnomalyNone},
		{name: "score at threshold is not anomalous", score: 0.75, anomalous: false, wantType: domain.AnomalyNone},
		{
			name: "overheating wins over every other rule",
			mutate: func(r *domain.SensorReading) {
				r.Temperature, r.Vibration, r.Pressure, r.PowerConsumption = 90, 0.9, 10, 95
			},
			score:     0.9,
			anomalous: true,
			wantType:  domain.AnomalyOverheating,
		},
		{
			name:      "vibration gives mechanical stress",
			mutate:    func(r *domain.SensorReading) { r.Temperature, r.Vibration = 70, 0.85 },
			score:     0.8,
			anomalous: true,
			wantType:  domain.AnomalyMechanicalStress,
		},
		{
			name:      "low pressure",
			mutate:    func(r *domain.SensorReading) { r.Pressure = 15 },
			score:     0.8,
			anomalous: true,
			wantType:  domain.AnomalyPressureAbnormality,
		},
		{
			name:      "high pressure",
			mutate:    func(r *domain.SensorReading) { r.Pressure = 101 },
			score:     0.8,
			anomalous: true,
			wantType:  domain.AnomalyPressureAbnormality,
		},
		{
			name:      "power surge",
			mutate:    func(r *domain.SensorReading) { r.PowerConsumption = 81 },
			score:     0.8,
			anomalous: true,
			wantType:  domain.AnomalyPowerSurge,
		},
		{
			name:      "no rule matches",
			score:     0.99,
			anomalous: true,
			wantType:  domain.AnomalyGeneral,
		},
		{
			name:      "rule match without anomalous score has no type",
			mutate:    func(r *domain.SensorReading) { r.Temperature = 120 },
			score:     0.1,
			anomalous: false,
			wantType:  domain.AnomalyNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := normalReading()
			if tt.mutate != nil {
				tt.mutate(&r)
			}
			got := c.Classify(r, tt.score)
			assert.Equal(t, tt.anomalous, got.IsAnomaly)
			assert.Equal(t, tt.wantType, got.AnomalyType)
			assert.Equal(t, tt.score, got.AnomalyScore)
			assert.Equal(t, r, got.Reading)
		})
	}
}

func TestClassifier_IsIdempotent(t *testing.T) {
	c := NewClassifier(DefaultThreshold)
	r := normalReading()
	r.Vibration = 0.95

	assert.Equal(t, c.Classify(r, 0.91), c.Classify(r, 0.91))
}

func TestClassifier_CustomThreshold(t *testing.T) {
	c := NewClassifier(0.5)
	assert.True(t, c.Classify(normalReading(), 0.6).IsAnomaly)
	assert.Equal(t, 0.5, c.Threshold())

	assert.Equal(t, DefaultThreshold, NewClassifier(0).Threshold())
	assert.Equal(t, DefaultThreshold, NewClassifier(1.5).Threshold())
}

func TestAnomalyResult_NullTypeInJSON(t *testing.T) {
	res := NewClassifier(DefaultThreshold).Classify(normalReading(), 0.1)
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	v, ok := m["anomaly_type"]
	assert.True(t, ok)
	assert.Nil(t, v)
}
