// Relay Worker — движок выполнения flows.
//
// Worker:
//   - Регистрирует определения flows и обработчики шагов
//   - Принимает триггеры и события из RabbitMQ
//   - Выполняет runs внутри процесса (DAG-движок)
//   - Снимает snapshot каждого run в PostgreSQL
//   - Доставляет durable-таймеры по расписанию
//
// Без Postgres и RabbitMQ worker деградирует в standalone-режим:
// runs живут в памяти, управление только через HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Relay/internal/api"
	"github.com/shaiso/Relay/internal/coordinator"
	"github.com/shaiso/Relay/internal/executor"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/repo"
	"github.com/shaiso/Relay/internal/runtime"
	"github.com/shaiso/Relay/internal/telemetry"
	"github.com/shaiso/Relay/internal/timers"
	"github.com/shaiso/Relay/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting relay-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Реестры: builtin-обработчики и flows
	handlers := registry.NewHandlerRegistry()
	worker.RegisterBuiltins(handlers)

	flows := registry.NewFlowRegistry()
	if err := worker.RegisterFlows(flows); err != nil {
		logger.Error("failed to register flows", "error", err)
		os.Exit(1)
	}

	// PostgreSQL: опционально, без него runs живут в памяти
	var runRepo *repo.RunRepo
	var store runtime.Store
	var timerStore timers.Store = timers.NewMemoryStore()

	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Warn("database not available, running without persistence", "error", err)
	} else {
		defer pool.Close()
		logger.Info("database connected")
		runRepo = repo.NewRunRepo(pool)
		store = runRepo
		timerStore = repo.NewTimerRepo(pool)
	}

	// Исполнители шагов
	execs := executor.NewRegistry()
	execs.Register(executor.NewTaskExecutor(handlers, logger))
	execs.Register(executor.NewSignalExecutor(logger))
	execs.Register(executor.NewTimerExecutor(logger))

	// Движок и сервис таймеров ссылаются друг на друга:
	// Engine нужен планировщик, Service — получатель DeliverTimer.
	timerSvc := timers.New(timers.Config{
		Store:  timerStore,
		Logger: logger,
	})

	engine := runtime.New(runtime.Config{
		Flows:     flows,
		Executors: execs,
		Store:     store,
		Timers:    timerSvc,
		Logger:    logger,
	})
	timerSvc.SetFirer(engine)

	// Поднимаем незавершённые runs до приёма внешних доставок
	if runRepo != nil {
		restored, err := engine.Restore(ctx, runRepo)
		if err != nil {
			logger.Error("failed to restore runs", "error", err)
			os.Exit(1)
		}
		if restored > 0 {
			logger.Info("runs restored", "count", restored)
		}
	}

	// RabbitMQ: опционально, без него управление только через HTTP
	var w *worker.Worker
	conn, err := coordinator.NewConnection(coordinator.URL(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in standalone mode", "error", err)
	} else {
		defer conn.Close()
		logger.Info("RabbitMQ connected")

		if err := coordinator.SetupTopology(conn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		pub := coordinator.NewPublisher(conn, logger)
		w = worker.New(worker.Config{
			Engine:    engine,
			Flows:     flows,
			Handlers:  handlers,
			Conn:      conn,
			Publisher: pub,
			Logger:    logger,
		})
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start worker", "error", err)
			os.Exit(1)
		}

		// В режиме шины срабатывания durable-таймеров идут через
		// event.timer и возвращаются в движок consumer-ом
		timerSvc.SetFirer(worker.BusFirer{Publisher: pub})
	}

	if err := timerSvc.Start(ctx); err != nil {
		logger.Error("failed to start timer service", "error", err)
		os.Exit(1)
	}

	// HTTP: API + /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	api.NewHandler(api.Config{
		Engine: engine,
		Flows:  flows,
		Logger: logger,
	}).RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if w != nil {
		w.Stop()
	}
	timerSvc.Stop()
	engine.Wait()

	logger.Info("relay-worker stopped")
}
