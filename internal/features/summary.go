package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/xela07ax/pdm-core/internal/domain"
)

const (
	// HighTemperature — порог "горячего" замера для счетчика.
	HighTemperature = 80.0
	// HighVibration — порог сильной вибрации для счетчика.
	HighVibration = 0.7
)

// Summary — статистика по окну замеров одного станка.
type Summary struct {
	Count           int
	TemperatureMean float64
	TemperatureStd  float64
	TemperatureMax  float64
	VibrationMean   float64
	VibrationStd    float64
	VibrationMax    float64
	HighTempCount   int
	HighVibeCount   int
}

// Vector раскладывает статистику в порядке, который ждет модель отказов.
func (s Summary) Vector() domain.FeatureVector {
	return domain.FeatureVector{
		s.TemperatureMean,
		s.TemperatureStd,
		s.TemperatureMax,
		s.VibrationMean,
		s.VibrationStd,
		s.VibrationMax,
		float64(s.HighTempCount),
		float64(s.HighVibeCount),
	}
}

// Summarize считает статистику по последним n замерам (n <= 0 — по всем).
// Пустая история дает нулевую сводку.
func Summarize(readings []domain.SensorReading, n int) Summary {
	if n > 0 && len(readings) > n {
		readings = readings[len(readings)-n:]
	}
	if len(readings) == 0 {
		return Summary{}
	}

	temps := make([]float64, len(readings))
	vibes := make([]float64, len(readings))
	s := Summary{Count: len(readings)}
	for i, r := range readings {
		temps[i] = r.Temperature
		vibes[i] = r.Vibration
		if r.Temperature > HighTemperature {
			s.HighTempCount++
		}
		if r.Vibration > HighVibration {
			s.HighVibeCount++
		}
	}

	s.TemperatureMean, s.TemperatureStd = meanPopStd(temps)
	s.TemperatureMax = floats.Max(temps)
	s.VibrationMean, s.VibrationStd = meanPopStd(vibes)
	s.VibrationMax = floats.Max(vibes)
	return s
}

// meanPopStd — среднее и стандартное отклонение генеральной совокупности.
func meanPopStd(x []float64) (float64, float64) {
	mean := stat.Mean(x, nil)
	if len(x) < 2 {
		return mean, 0
	}
	// stat.Variance несмещенная (n-1), приводим к делителю n
	n := float64(len(x))
	variance := stat.Variance(x, nil) * (n - 1) / n
	return mean, math.Sqrt(variance)
}
