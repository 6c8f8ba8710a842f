package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Relay/internal/coordinator"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/runtime"
)

// Version воркера, отправляется в worker.hello.
const Version = "0.1.0"

// Worker связывает движок с координатором.
//
// При старте объявляет себя (worker.hello) с перечнем обработчиков
// и flows, затем потребляет очереди команд и событий, транслируя их
// в вызовы движка. Завершение runs публикуется обратно.
type Worker struct {
	engine    *runtime.Engine
	flows     *registry.FlowRegistry
	handlers  *registry.HandlerRegistry
	conn      *coordinator.Connection
	publisher *coordinator.Publisher
	logger    *slog.Logger

	consumers []*coordinator.Consumer

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	Engine    *runtime.Engine
	Flows     *registry.FlowRegistry
	Handlers  *registry.HandlerRegistry
	Conn      *coordinator.Connection
	Publisher *coordinator.Publisher
	Logger    *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	return &Worker{
		engine:    cfg.Engine,
		flows:     cfg.Flows,
		handlers:  cfg.Handlers,
		conn:      cfg.Conn,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}
}

// Start объявляет воркера и запускает потребление очередей.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	// Завершение любого run публикуется наружу
	w.engine.OnFinish(func(run *domain.Run) {
		w.publishCompletion(ctx, run)
	})

	if err := w.publisher.PublishWorkerHello(ctx, coordinator.WorkerHelloPayload{
		ServiceName: ServiceName,
		Version:     Version,
		Handlers:    w.handlers.List(ServiceName),
		Flows:       w.flows.Names(),
	}); err != nil {
		return fmt.Errorf("announce worker: %w", err)
	}

	queues := []struct {
		queue   coordinator.Queue
		handler coordinator.Handler
	}{
		{coordinator.QueueTriggersStart, w.handleStartFlow},
		{coordinator.QueueTriggersCancel, w.handleCancelRun},
		{coordinator.QueueEventsSignal, w.handleSignal},
		{coordinator.QueueEventsTimer, w.handleTimer},
	}

	for _, q := range queues {
		consumer := coordinator.NewConsumer(w.conn, w.logger, coordinator.ConsumerConfig{
			Queue:   q.queue,
			Handler: q.handler,
		})
		w.consumers = append(w.consumers, consumer)

		w.wg.Add(1)
		go func(c *coordinator.Consumer) {
			defer w.wg.Done()
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("consumer stopped", "error", err)
			}
		}(consumer)
	}

	w.logger.Info("worker started",
		"service", ServiceName,
		"version", Version,
		"flows", w.flows.Names())

	return nil
}

// Stop останавливает потребление и дожидается завершения
// запущенных шагов.
func (w *Worker) Stop() {
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	for _, c := range w.consumers {
		c.Stop()
	}
	w.wg.Wait()
	w.engine.Wait()

	w.logger.Info("worker stopped")
}

// handleStartFlow запускает run по команде flow.start.
func (w *Worker) handleStartFlow(ctx context.Context, msg *coordinator.Delivery) error {
	payload, err := coordinator.ParsePayload[coordinator.StartFlowPayload](&msg.Message)
	if err != nil {
		return fmt.Errorf("parse start payload: %w", err)
	}

	run, err := w.engine.StartFlow(ctx, payload.FlowName, payload.Params)
	if err != nil {
		return fmt.Errorf("start flow %s: %w", payload.FlowName, err)
	}

	w.logger.Info("run started from trigger",
		"run_id", run.ID,
		"flow", payload.FlowName)

	return nil
}

// handleCancelRun отменяет run по команде run.cancel.
// Отмена уже терминального run поглощается: команда могла
// задублироваться.
func (w *Worker) handleCancelRun(ctx context.Context, msg *coordinator.Delivery) error {
	payload, err := coordinator.ParsePayload[coordinator.CancelRunPayload](&msg.Message)
	if err != nil {
		return fmt.Errorf("parse cancel payload: %w", err)
	}

	if err := w.engine.CancelRun(ctx, payload.RunID); err != nil {
		w.logger.Debug("cancel ignored", "run_id", payload.RunID, "error", err)
	}

	return nil
}

// handleSignal доставляет сигнал в движок.
// Движок идемпотентен: дубликаты и устаревшие сигналы поглощаются.
func (w *Worker) handleSignal(ctx context.Context, msg *coordinator.Delivery) error {
	payload, err := coordinator.ParsePayload[coordinator.SignalPayload](&msg.Message)
	if err != nil {
		return fmt.Errorf("parse signal payload: %w", err)
	}

	if err := w.engine.DeliverSignal(ctx, payload.RunID, payload.SignalName, payload.Payload); err != nil {
		w.logger.Debug("signal dropped",
			"run_id", payload.RunID,
			"signal", payload.SignalName,
			"error", err)
	}

	return nil
}

// handleTimer доставляет срабатывание таймера в движок.
func (w *Worker) handleTimer(ctx context.Context, msg *coordinator.Delivery) error {
	payload, err := coordinator.ParsePayload[coordinator.TimerPayload](&msg.Message)
	if err != nil {
		return fmt.Errorf("parse timer payload: %w", err)
	}

	if err := w.engine.DeliverTimer(ctx, payload.RunID, payload.TimerKey); err != nil {
		w.logger.Debug("timer dropped",
			"run_id", payload.RunID,
			"timer_key", payload.TimerKey,
			"error", err)
	}

	return nil
}

// publishCompletion публикует run.completed для терминального run.
func (w *Worker) publishCompletion(ctx context.Context, run *domain.Run) {
	err := w.publisher.PublishRunCompleted(ctx, coordinator.RunCompletedPayload{
		RunID:    run.ID,
		FlowName: run.FlowName,
		Status:   string(run.Status),
		Error:    run.Error,
	})
	if err != nil {
		w.logger.Error("publish run completed", "run_id", run.ID, "error", err)
	}
}
