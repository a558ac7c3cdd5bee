// Package ingest превращает сообщения шины в SensorReading.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/pdm-core/internal/domain"
)

// Decode разбирает JSON-замер. Отсутствующие или нечисловые поля становятся 0.
// machineID из субъекта используется, если в теле его нет.
func Decode(data []byte, machineID string, now time.Time) (domain.SensorReading, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.SensorReading{}, fmt.Errorf("decode reading: %w", err)
	}
	return fromMap(m, machineID, now), nil
}

// DecodeAll читает JSON-массив замеров (файл для replay).
func DecodeAll(r io.Reader, now time.Time) ([]domain.SensorReading, error) {
	var raw []map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode readings: %w", err)
	}
	out := make([]domain.SensorReading, 0, len(raw))
	for i, m := range raw {
		rd := fromMap(m, "", now)
		if rd.MachineID == "" {
			return nil, fmt.Errorf("reading %d: machine_id is required", i)
		}
		out = append(out, rd)
	}
	return out, nil
}

func fromMap(m map[string]interface{}, machineID string, now time.Time) domain.SensorReading {
	r := domain.SensorReading{
		MachineID:        machineID,
		Timestamp:        now.UTC(),
		Temperature:      number(m["temperature"]),
		Vibration:        number(m["vibration"]),
		Pressure:         number(m["pressure"]),
		PowerConsumption: number(m["power_consumption"]),
	}
	if id, ok := m["machine_id"].(string); ok && id != "" {
		r.MachineID = id
	}
	if ts, ok := m["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			r.Timestamp = parsed.UTC()
		}
	}
	return r
}

func number(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f
		}
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

// MachineFromSubject достает id станка из factory.machines.<id>.sensors.
func MachineFromSubject(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) == 4 && parts[0] == "factory" && parts[1] == "machines" && parts[3] == "sensors" {
		return parts[2]
	}
	return ""
}
