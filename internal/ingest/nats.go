package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/xela07ax/pdm-core/internal/domain"
)

// Processor — потребитель замеров (конвейер).
type Processor interface {
	Observe(ctx context.Context, reading domain.SensorReading)
}

// NATSSubscriber слушает субъект телеметрии и отдает каждый замер в конвейер
// в отдельной горутине; число одновременных обработок ограничено семафором.
type NATSSubscriber struct {
	conn    *nats.Conn
	subject string
	proc    Processor
	sem     chan struct{}
	logger  *zap.Logger

	wg  sync.WaitGroup
	sub *nats.Subscription
}

func NewNATSSubscriber(conn *nats.Conn, subject string, maxInFlight int, proc Processor, logger *zap.Logger) *NATSSubscriber {
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &NATSSubscriber{
		conn:    conn,
		subject: subject,
		proc:    proc,
		sem:     make(chan struct{}, maxInFlight),
		logger:  logger.Named("ingest"),
	}
}

// Start подписывается; ctx ограничивает время жизни обработчиков.
func (s *NATSSubscriber) Start(ctx context.Context) error {
	if s.sub != nil {
		return errors.New("ingest: already started")
	}
	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		s.Handle(ctx, msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("ingest: subscribe %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info("subscribed", zap.String("subject", s.subject))
	return nil
}

// Handle разбирает сообщение и запускает обработку. Вызывается из колбэка NATS.
func (s *NATSSubscriber) Handle(ctx context.Context, subject string, data []byte) {
	reading, err := Decode(data, MachineFromSubject(subject), time.Now())
	if err != nil {
		s.logger.Warn("dropping malformed reading", zap.String("subject", subject), zap.Error(err))
		return
	}
	if reading.MachineID == "" {
		s.logger.Warn("dropping reading without machine id", zap.String("subject", subject))
		return
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.sem
			s.wg.Done()
		}()
		s.proc.Observe(ctx, reading)
	}()
}

// Stop отписывается и ждет завершения начатых обработок.
func (s *NATSSubscriber) Stop() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", zap.Error(err))
		}
	}
	s.wg.Wait()
	s.logger.Info("subscriber stopped")
}
