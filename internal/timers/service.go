package timers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Default configuration values.
const (
	defaultSweepSpec = "@every 1s"
	defaultBatchSize = 100
)

// Firer принимает срабатывание таймера.
// Реализуется runtime.Engine (DeliverTimer).
type Firer interface {
	DeliverTimer(ctx context.Context, runID uuid.UUID, timerKey string) error
}

// Service — планировщик durable-таймеров.
//
// Таймеры регистрируются при приостановке wait_timer шагов и
// срабатывают периодическим обходом due-записей. Срабатывание
// доставляется в движок через Firer; доставка идемпотентна, поэтому
// таймер удаляется из хранилища только после успешной доставки.
type Service struct {
	store     Store
	firer     Firer
	logger    *slog.Logger
	sweepSpec string
	batchSize int

	cron    *cron.Cron
	entryID cron.EntryID
}

// Config — конфигурация Service.
type Config struct {
	Store Store
	Firer Firer

	// SweepSpec — cron-выражение обхода (default: "@every 1s").
	SweepSpec string

	// BatchSize — количество таймеров за один обход (default: 100).
	BatchSize int

	Logger *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	sweepSpec := cfg.SweepSpec
	if sweepSpec == "" {
		sweepSpec = defaultSweepSpec
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:     cfg.Store,
		firer:     cfg.Firer,
		logger:    logger,
		sweepSpec: sweepSpec,
		batchSize: batchSize,
	}
}

// SetFirer задаёт получателя срабатываний. Движок и сервис таймеров
// ссылаются друг на друга, поэтому получатель подключается после
// конструирования обоих. Вызывать до Start.
func (s *Service) SetFirer(f Firer) {
	s.firer = f
}

// Schedule регистрирует таймер. Реализует runtime.TimerScheduler.
func (s *Service) Schedule(ctx context.Context, runID uuid.UUID, timerKey string, token uuid.UUID, fireAt time.Time) error {
	entry := Entry{
		Token:    token,
		RunID:    runID,
		TimerKey: timerKey,
		FireAt:   fireAt,
	}

	if err := s.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("store timer: %w", err)
	}

	s.logger.Debug("timer scheduled",
		"run_id", runID,
		"timer_key", timerKey,
		"fire_at", fireAt)

	return nil
}

// CancelRun снимает все таймеры run. Реализует runtime.TimerScheduler.
func (s *Service) CancelRun(ctx context.Context, runID uuid.UUID) error {
	if err := s.store.DeleteRun(ctx, runID); err != nil {
		return fmt.Errorf("delete run timers: %w", err)
	}
	return nil
}

// Start запускает периодический обход.
func (s *Service) Start(ctx context.Context) error {
	s.cron = cron.New()

	entryID, err := s.cron.AddFunc(s.sweepSpec, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("timer sweep", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add sweep job: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.logger.Info("timer service started", "sweep", s.sweepSpec)

	return nil
}

// Stop останавливает обход и дожидается завершения текущего тика.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("timer service stopped")
}

// Sweep выполняет один обход: находит due-таймеры и доставляет
// срабатывания. Ошибка доставки одного таймера не блокирует
// остальные; неудачный таймер останется в хранилище до следующего
// обхода.
func (s *Service) Sweep(ctx context.Context) error {
	now := time.Now()

	due, err := s.store.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due timers: %w", err)
	}

	for _, entry := range due {
		if err := s.firer.DeliverTimer(ctx, entry.RunID, entry.TimerKey); err != nil {
			s.logger.Error("deliver timer",
				"run_id", entry.RunID,
				"timer_key", entry.TimerKey,
				"error", err)
			continue
		}

		if err := s.store.Delete(ctx, entry.Token); err != nil {
			// Повторная доставка безопасна: движок поглотит дубликат
			s.logger.Warn("delete fired timer",
				"token", entry.Token,
				"error", err)
		}
	}

	return nil
}
