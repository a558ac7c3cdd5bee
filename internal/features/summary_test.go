package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xela07ax/pdm-core/internal/domain"
)

func reading(temp, vib float64) domain.SensorReading {
	return domain.SensorReading{MachineID: "m1", Timestamp: time.Unix(0, 0), Temperature: temp, Vibration: vib}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		readings []domain.SensorReading
		n        int
		want     Summary
	}{
		{
			name: "empty history gives zero summary",
			want: Summary{},
		},
		{
			name:     "single reading has zero deviation",
			readings: []domain.SensorReading{reading(90, 0.9)},
			n:        10,
			want: Summary{
				Count:           1,
				TemperatureMean: 90,
				TemperatureMax:  90,
				VibrationMean:   0.9,
				VibrationMax:    0.9,
				HighTempCount:   1,
				HighVibeCount:   1,
			},
		},
		{
			name:     "population deviation over all readings",
			readings: []domain.SensorReading{reading(70, 0.5), reading(90, 0.5)},
			n:        10,
			want: Summary{
				Count:           2,
				TemperatureMean: 80,
				TemperatureStd:  10,
				TemperatureMax:  90,
				VibrationMean:   0.5,
				VibrationMax:    0.5,
				HighTempCount:   1,
			},
		},
		{
			name: "only the most recent n readings count",
			readings: []domain.SensorReading{
				reading(200, 2), reading(60, 0.1), reading(60, 0.1),
			},
			n: 2,
			want: Summary{
				Count:           2,
				TemperatureMean: 60,
				TemperatureMax:  60,
				VibrationMean:   0.1,
				VibrationMax:    0.1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.readings, tt.n)
			assert.Equal(t, tt.want.Count, got.Count)
			assert.InDelta(t, tt.want.TemperatureMean, got.TemperatureMean, 1e-9)
			assert.InDelta(t, tt.want.TemperatureStd, got.TemperatureStd, 1e-9)
			assert.InDelta(t, tt.want.TemperatureMax, got.TemperatureMax, 1e-9)
			assert.InDelta(t, tt.want.VibrationMean, got.VibrationMean, 1e-9)
			assert.InDelta(t, tt.want.VibrationStd, got.VibrationStd, 1e-9)
			assert.InDelta(t, tt.want.VibrationMax, got.VibrationMax, 1e-9)
			assert.Equal(t, tt.want.HighTempCount, got.HighTempCount)
			assert.Equal(t, tt.want.HighVibeCount, got.HighVibeCount)
		})
	}
}

func TestSummarize_ThresholdsAreStrict(t *testing.T) {
	s := Summarize([]domain.SensorReading{reading(80, 0.7)}, 0)
	assert.Zero(t, s.HighTempCount)
	assert.Zero(t, s.HighVibeCount)
}

func TestSummary_VectorOrder(t *testing.T) {
	s := Summary{
		TemperatureMean: 1, TemperatureStd: 2, TemperatureMax: 3,
		VibrationMean: 4, VibrationStd: 5, VibrationMax: 6,
		HighTempCount: 7, HighVibeCount: 8,
	}
	assert.Equal(t, domain.FeatureVector{1, 2, 3, 4, 5, 6, 7, 8}, s.Vector())
}

func TestMeanPopStd_NoNaN(t *testing.T) {
	mean, std := meanPopStd([]float64{42})
	assert.Equal(t, 42.0, mean)
	assert.False(t, math.IsNaN(std))
	assert.Zero(t, std)
}
