// Package alerting решает, когда поднимать алерт, и доставляет его в приемники.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/telemetry"
)

const (
	// HighSeverityScore — оценка аномалии выше порога дает severity high.
	HighSeverityScore = 0.85
	// FailureAlertProbability — вероятность отказа выше порога дает алерт.
	FailureAlertProbability = 0.7
)

type Dispatcher struct {
	sink    AlertSink
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewDispatcher(sink AlertSink, metrics *telemetry.Metrics, logger *zap.Logger) *Dispatcher {
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}
	return &Dispatcher{
		sink:    sink,
		metrics: metrics,
		logger:  logger.Named("dispatcher"),
		now:     time.Now,
	}
}

// OnAnomaly поднимает алерт только для аномального результата.
func (d *Dispatcher) OnAnomaly(ctx context.Context, res domain.AnomalyResult) *domain.AlertRecord {
	if !res.IsAnomaly {
		return nil
	}
	severity := domain.SeverityMedium
	if res.AnomalyScore > HighSeverityScore {
		severity = domain.SeverityHigh
	}
	alert := d.newAlert(domain.AlertAnomalyDetected, res.MachineID, severity,
		fmt.Sprintf("Anomaly detected: %s", res.AnomalyType))
	d.emit(ctx, alert)
	return &alert
}

// OnFailure поднимает критический алерт при вероятности отказа выше порога.
func (d *Dispatcher) OnFailure(ctx context.Context, pred domain.FailurePrediction) *domain.AlertRecord {
	if pred.FailureProbability <= FailureAlertProbability {
		return nil
	}
	alert := d.newAlert(domain.AlertFailurePrediction, pred.MachineID, domain.SeverityCritical,
		fmt.Sprintf("Failure probability: %.2f%%", pred.FailureProbability*100))
	alert.EstimatedHours = pred.EstimatedHoursToFailure
	d.emit(ctx, alert)
	return &alert
}

func (d *Dispatcher) newAlert(t domain.AlertType, machineID string, s domain.Severity, msg string) domain.AlertRecord {
	return domain.AlertRecord{
		ID:        uuid.New().String(),
		Type:      t,
		MachineID: machineID,
		Severity:  s,
		Message:   msg,
		Timestamp: d.now().UTC(),
	}
}

// emit не повторяет доставку: сбой приемника логируется, алерт все равно возвращается.
func (d *Dispatcher) emit(ctx context.Context, alert domain.AlertRecord) {
	d.metrics.AlertsTotal.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	if d.sink == nil {
		return
	}
	if err := d.sink.Send(ctx, alert); err != nil {
		d.metrics.SinkErrorsTotal.WithLabelValues(string(alert.Type)).Inc()
		d.logger.Error("alert delivery failed",
			zap.String("alert_id", alert.ID),
			zap.String("machine_id", alert.MachineID),
			zap.Error(err),
		)
	}
}
