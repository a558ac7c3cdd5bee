package domain

import "time"

type AlertStats struct {
	Since       time.Time        `json:"since"`
	Total       int64            `json:"total"`
	BySeverity  map[string]int64 `json:"by_severity"`
	ByType      map[string]int64 `json:"by_type"`
	TopMachines []MachineCount   `json:"top_machines"`
}

type MachineCount struct {
	MachineID string `json:"machine_id"`
	Count     int64  `json:"count"`
}
