package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xela07ax/pdm-core/internal/domain"
)

// ReadingRepo читает историю замеров для прогноза отказа.
type ReadingRepo struct {
	db *sql.DB
}

func NewReadingRepo(db *sql.DB) *ReadingRepo {
	return &ReadingRepo{db: db}
}

// RecentReadings возвращает последние limit замеров станка от старых к новым.
func (r *ReadingRepo) RecentReadings(ctx context.Context, machineID string, limit int) ([]domain.SensorReading, error) {
	const query = `SELECT machine_id, ts, temperature, vibration, pressure, power_consumption
		FROM sensor_readings WHERE machine_id = $1 ORDER BY ts DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, machineID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query readings for %s: %w", machineID, err)
	}
	defer rows.Close()

	out := make([]domain.SensorReading, 0, limit)
	for rows.Next() {
		var rd domain.SensorReading
		if err := rows.Scan(&rd.MachineID, &rd.Timestamp, &rd.Temperature, &rd.Vibration, &rd.Pressure, &rd.PowerConsumption); err != nil {
			return nil, fmt.Errorf("postgres: scan reading: %w", err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate readings: %w", err)
	}
	reverse(out)
	return out, nil
}

// Append сохраняет замер, чтобы история переживала рестарт.
func (r *ReadingRepo) Append(ctx context.Context, rd domain.SensorReading) error {
	const query = `INSERT INTO sensor_readings (machine_id, ts, temperature, vibration, pressure, power_consumption)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, rd.MachineID, rd.Timestamp, rd.Temperature, rd.Vibration, rd.Pressure, rd.PowerConsumption)
	return err
}

// Ping проверяет доступность базы
func (r *ReadingRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func reverse(rs []domain.SensorReading) {
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
}
