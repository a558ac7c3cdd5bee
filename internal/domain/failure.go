package domain

import "time"

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Factor — признак, который повышает риск отказа.
type Factor string

const (
	FactorSustainedHighTemperature Factor = "sustained_high_temperature"
	FactorExcessiveVibration       Factor = "excessive_vibration"
	FactorPowerInstability         Factor = "power_instability"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type FailurePrediction struct {
	MachineID               string     `json:"machine_id"`
	Timestamp               time.Time  `json:"timestamp"`
	FailureProbability      float64    `json:"failure_probability"`
	EstimatedHoursToFailure *float64   `json:"estimated_time_to_failure"`
	Confidence              Confidence `json:"confidence"`
	ContributingFactors     []Factor   `json:"contributing_factors"`
	RiskLevel               RiskLevel  `json:"risk_level"`
	MaintenanceRecommended  bool       `json:"maintenance_recommended"`
	FallbackUsed            bool       `json:"fallback_used"`
}
