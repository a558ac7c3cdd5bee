package domain

import "time"

type AlertType string

const (
	AlertAnomalyDetected   AlertType = "anomaly_detected"
	AlertFailurePrediction AlertType = "failure_prediction"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertRecord создается не более одного раза на результат.
type AlertRecord struct {
	ID             string    `json:"id"`
	Type           AlertType `json:"type"`
	MachineID      string    `json:"machine_id"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	EstimatedHours *float64  `json:"estimated_time,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
