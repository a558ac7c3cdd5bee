// Package anomaly превращает оценку модели в типизированный результат.
package anomaly

import "github.com/xela07ax/pdm-core/internal/domain"

// DefaultThreshold — оценка строго выше порога считается аномалией.
const DefaultThreshold = 0.75

// Rule сопоставляет замер с типом аномалии.
type Rule struct {
	Type  domain.AnomalyType
	Match func(domain.SensorReading) bool
}

// DefaultRules проверяются по порядку, срабатывает первое совпадение.
var DefaultRules = []Rule{
	{Type: domain.AnomalyOverheating, Match: func(r domain.SensorReading) bool { return r.Temperature > 85 }},
	{Type: domain.AnomalyMechanicalStress, Match: func(r domain.SensorReading) bool { return r.Vibration > 0.8 }},
	{Type: domain.AnomalyPressureAbnormality, Match: func(r domain.SensorReading) bool { return r.Pressure < 20 || r.Pressure > 100 }},
	{Type: domain.AnomalyPowerSurge, Match: func(r domain.SensorReading) bool { return r.PowerConsumption > 80 }},
}

type Classifier struct {
	threshold float64
	rules     []Rule
}

// NewClassifier создает классификатор со стандартной таблицей правил.
// Порог вне (0, 1] заменяется значением по умолчанию.
func NewClassifier(threshold float64) Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Classifier{threshold: threshold, rules: DefaultRules}
}

func (c Classifier) Threshold() float64 { return c.threshold }

// Classify — чистая функция: одинаковый вход дает одинаковый результат.
func (c Classifier) Classify(reading domain.SensorReading, score float64) domain.AnomalyResult {
	res := domain.AnomalyResult{
		MachineID:    reading.MachineID,
		Timestamp:    reading.Timestamp,
		AnomalyScore: score,
		IsAnomaly:    score > c.threshold,
		Reading:      reading,
	}
	if res.IsAnomaly {
		res.AnomalyType = c.typeOf(reading)
	}
	return res
}

func (c Classifier) typeOf(r domain.SensorReading) domain.AnomalyType {
	for _, rule := range c.rules {
		if rule.Match(r) {
			return rule.Type
		}
	}
	return domain.AnomalyGeneral
}
