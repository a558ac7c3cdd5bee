package alerting

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xela07ax/pdm-core/internal/domain"
)

// AlertSink доставляет алерт наружу. Повторы — забота самого приемника.
type AlertSink interface {
	Send(ctx context.Context, alert domain.AlertRecord) error
}

type SinkFunc func(ctx context.Context, alert domain.AlertRecord) error

func (f SinkFunc) Send(ctx context.Context, alert domain.AlertRecord) error {
	return f(ctx, alert)
}

// MultiSink рассылает алерт во все приемники и собирает ошибки.
type MultiSink []AlertSink

func (m MultiSink) Send(ctx context.Context, alert domain.AlertRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink пишет алерт в лог; используется, когда внешних приемников нет.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("alerts")}
}

func (s *LogSink) Send(_ context.Context, alert domain.AlertRecord) error {
	s.logger.Info("alert",
		zap.String("id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.String("machine_id", alert.MachineID),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message),
	)
	return nil
}
