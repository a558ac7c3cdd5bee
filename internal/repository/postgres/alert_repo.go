package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xela07ax/pdm-core/internal/domain"
)

// Количество колонок в таблице alerts
const alertColumns = 7

// AlertRepo пишет алерты журнала пачками.
type AlertRepo struct {
	db *sql.DB
}

func NewAlertRepo(db *sql.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

func (r *AlertRepo) WriteBatch(ctx context.Context, alerts []domain.AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}
	query, vals := buildAlertInsert(alerts)
	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: insert %d alerts: %w", len(alerts), err)
	}
	return nil
}

// buildAlertInsert динамически строит многострочный INSERT.
func buildAlertInsert(alerts []domain.AlertRecord) (string, []interface{}) {
	var sb strings.Builder
	vals := make([]interface{}, 0, len(alerts)*alertColumns)

	for i, a := range alerts {
		if i > 0 {
			sb.WriteString(", ")
		}
		p := i * alertColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4, p+5, p+6, p+7)

		var hours interface{}
		if a.EstimatedHours != nil {
			hours = *a.EstimatedHours
		}
		vals = append(vals,
			a.ID, string(a.Type), a.MachineID, string(a.Severity), a.Message, hours, a.Timestamp,
		)
	}

	query := "INSERT INTO alerts (id, type, machine_id, severity, message, estimated_hours, created_at) VALUES " +
		sb.String() + " ON CONFLICT (id) DO NOTHING"
	return query, vals
}
