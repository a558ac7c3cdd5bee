package domain

import "time"

// CO2PerKW — кг CO2 на сэкономленный кВт.
const CO2PerKW = 0.5

type MitigationAction struct {
	ID                string    `json:"id"`
	MachineID         string    `json:"machine_id"`
	ActionType        string    `json:"action_type"`
	Reason            string    `json:"reason"`
	ExpectedSavingsKW float64   `json:"expected_savings_kw"`
	CO2ReductionKg    float64   `json:"co2_reduction_kg"`
	AppliedAt         time.Time `json:"applied_at"`
}

// VibrationAnalysis — результат модели vibration_analysis.
type VibrationAnalysis struct {
	MachineID         string  `json:"machine_id"`
	BearingHealth     string  `json:"bearing_health"`
	DominantFrequency float64 `json:"dominant_frequency"`
	IsAnomalous       bool    `json:"is_anomalous"`
	FallbackUsed      bool    `json:"fallback_used"`
}

// ControlDecision — решение контура управления.
type ControlDecision struct {
	MachineID    string  `json:"machine_id"`
	Action       string  `json:"action"`
	Adjustment   float64 `json:"adjustment"`
	Confidence   float64 `json:"confidence"`
	FallbackUsed bool    `json:"fallback_used"`
}
