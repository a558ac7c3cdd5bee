package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/infra"
)

// NATSPublisher — часть nats.Conn, нужная приемнику.
type NATSPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink публикует алерт в factory.alerts.<type>.
type NATSSink struct {
	conn NATSPublisher
}

func NewNATSSink(conn NATSPublisher) *NATSSink {
	return &NATSSink{conn: conn}
}

func (s *NATSSink) Send(ctx context.Context, alert domain.AlertRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("nats sink: marshal alert: %w", err)
	}
	if err := s.conn.Publish(infra.AlertSubject(string(alert.Type)), payload); err != nil {
		return fmt.Errorf("nats sink: publish: %w", err)
	}
	return nil
}
