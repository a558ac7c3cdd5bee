package domain

import (
	"encoding/json"
	"time"
)

// AnomalyType — категория аномалии. Пустое значение означает "нет аномалии".
type AnomalyType string

const (
	AnomalyNone                AnomalyType = ""
	AnomalyOverheating         AnomalyType = "overheating"
	AnomalyMechanicalStress    AnomalyType = "mechanical_stress"
	AnomalyPressureAbnormality AnomalyType = "pressure_abnormality"
	AnomalyPowerSurge          AnomalyType = "power_surge"
	AnomalyGeneral             AnomalyType = "general_anomaly"
)

// MarshalJSON отдает null для пустого типа.
func (t AnomalyType) MarshalJSON() ([]byte, error) {
	if t == AnomalyNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

func (t *AnomalyType) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = AnomalyNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = AnomalyType(s)
	return nil
}

type AnomalyResult struct {
	MachineID    string        `json:"machine_id"`
	Timestamp    time.Time     `json:"timestamp"`
	AnomalyScore float64       `json:"anomaly_score"`
	IsAnomaly    bool          `json:"is_anomaly"`
	AnomalyType  AnomalyType   `json:"anomaly_type"`
	Reading      SensorReading `json:"sensor_data"`
}
