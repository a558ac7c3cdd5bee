package alerting

/*
Journal — асинхронная персистентность алертов.

- Non-blocking: Send только кладет алерт в буферизованный канал, задержки БД
  не попадают в горячий путь конвейера.
- Batching: алерты копятся и пишутся пачкой по таймеру или по лимиту.
- Drain: Stop закрывает вход, воркер вычитывает остаток и делает финальный flush.
*/

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/telemetry"
)

var (
	ErrJournalClosed   = errors.New("alerting: journal is stopping")
	ErrJournalOverflow = errors.New("alerting: journal buffer overflow")
)

// JournalStorage определяет, куда физически сохраняются алерты.
type JournalStorage interface {
	// WriteBatch сохраняет пачку алертов за один раз
	WriteBatch(ctx context.Context, alerts []domain.AlertRecord) error
}

type JournalConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func DefaultJournalConfig() JournalConfig {
	return JournalConfig{BufferSize: 10000, BatchSize: 100, FlushInterval: 500 * time.Millisecond}
}

type Journal struct {
	ch      chan domain.AlertRecord
	repo    JournalStorage
	cfg     JournalConfig
	metrics *telemetry.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup
	// Send после Stop не должен паниковать на закрытом канале
	closed atomic.Bool
	sendMu sync.RWMutex
}

func NewJournal(repo JournalStorage, cfg JournalConfig, metrics *telemetry.Metrics, logger *zap.Logger) *Journal {
	def := DefaultJournalConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}
	return &Journal{
		ch:      make(chan domain.AlertRecord, cfg.BufferSize),
		repo:    repo,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "journal")),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.sendMu.Lock()
	if j.closed.Swap(true) {
		j.sendMu.Unlock()
		return
	}
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.sendMu.Unlock()

	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

// Send реализует AlertSink. Сброс нагрузки вместо ожидания при переполнении.
func (j *Journal) Send(_ context.Context, alert domain.AlertRecord) error {
	j.sendMu.RLock()
	defer j.sendMu.RUnlock()

	if j.closed.Load() {
		return ErrJournalClosed
	}
	select {
	case j.ch <- alert:
		j.metrics.JournalBufferFill.Set(float64(len(j.ch)))
		return nil
	default:
		return ErrJournalOverflow
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]domain.AlertRecord, 0, j.cfg.BatchSize)
	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("alerts", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		j.metrics.JournalBufferFill.Set(float64(len(j.ch)))
	}

	for {
		select {
		case alert, ok := <-j.ch:
			if !ok {
				// Канал закрыт в Stop: остаток уже вычитан
				flush()
				return
			}
			batch = append(batch, alert)
			if len(batch) >= j.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
