package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/pdm-core/internal/domain"
)

func TestBuildAlertInsert(t *testing.T) {
	hours := 12.5
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alerts := []domain.AlertRecord{
		{ID: "a1", Type: domain.AlertAnomalyDetected, MachineID: "m1", Severity: domain.SeverityHigh, Message: "x", Timestamp: ts},
		{ID: "a2", Type: domain.AlertFailurePrediction, MachineID: "m2", Severity: domain.SeverityCritical, Message: "y", EstimatedHours: &hours, Timestamp: ts},
	}

	query, vals := buildAlertInsert(alerts)

	require.Len(t, vals, 14)
	assert.True(t, strings.HasPrefix(query, "INSERT INTO alerts"))
	assert.Contains(t, query, "($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $13, $14)")
	assert.Nil(t, vals[5])
	assert.Equal(t, 12.5, vals[12])
	assert.Equal(t, "failure_prediction", vals[8])
}

func TestReverse(t *testing.T) {
	rs := []domain.SensorReading{{MachineID: "3"}, {MachineID: "2"}, {MachineID: "1"}}
	reverse(rs)
	assert.Equal(t, "1", rs[0].MachineID)
	assert.Equal(t, "3", rs[2].MachineID)
}
