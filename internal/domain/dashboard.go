package domain

// KPIReport — сводка для дашборда эксплуатации.
type KPIReport struct {
	Monitoring      MonitoringStats `json:"monitoring"`      // Охват и поток
	Risks           RiskStats       `json:"risks"`           // Прогнозы отказов
	Energy          EnergyStats     `json:"energy"`          // Экономия от мер
	Recommendations []string        `json:"recommendations"` // Что делать дальше
}

type MonitoringStats struct {
	MachinesMonitored int            `json:"machines_monitored"`
	AnomaliesTotal    int64          `json:"anomalies_total"`
	FailuresTotal     int64          `json:"failure_predictions_total"`
	AnomaliesByType   map[string]int `json:"anomalies_by_type"`
}

type RiskStats struct {
	AverageFailureRisk float64  `json:"average_failure_risk"`
	HighRiskMachines   []string `json:"high_risk_machines"` // Последний прогноз > 0.7
}

type EnergyStats struct {
	ActionsTotal        int64   `json:"actions_total"`
	TotalSavingsKW      float64 `json:"total_savings_kw"`
	TotalCO2ReductionKg float64 `json:"total_co2_reduction_kg"`
}

// OptimizationSummary — последние меры и их суммарный эффект.
type OptimizationSummary struct {
	Actions             []MitigationAction `json:"actions"`
	TotalSavingsKW      float64            `json:"total_savings_kw"`
	TotalCO2ReductionKg float64            `json:"total_co2_reduction_kg"`
	Recommendations     []string           `json:"recommendations"`
}
