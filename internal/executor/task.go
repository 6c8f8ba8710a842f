package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/registry"
)

// TaskExecutor исполняет task-шаги, вызывая прикладной обработчик
// из реестра по паре (service_name, handler_name).
type TaskExecutor struct {
	handlers *registry.HandlerRegistry
	logger   *slog.Logger
}

// NewTaskExecutor создаёт исполнитель task-шагов.
func NewTaskExecutor(handlers *registry.HandlerRegistry, logger *slog.Logger) *TaskExecutor {
	return &TaskExecutor{
		handlers: handlers,
		logger:   logger,
	}
}

func (e *TaskExecutor) Type() domain.StepType {
	return domain.StepTypeTask
}

// Execute вызывает обработчик шага и возвращает его output.
func (e *TaskExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	step := req.Step
	start := time.Now()

	e.logger.Debug("invoking handler",
		"run_id", req.RunID,
		"step", step.Name,
		"service", step.ServiceName,
		"handler", step.HandlerName)

	inv := registry.InvocationContext{
		RunID:    req.RunID,
		FlowName: req.FlowName,
		StepName: step.Name,
	}

	output, err := e.handlers.Invoke(ctx, step.ServiceName, step.HandlerName, inv, req.Input)
	if err != nil {
		return nil, &HandlerFailure{
			Service: step.ServiceName,
			Handler: step.HandlerName,
			Input:   req.Input,
			Err:     err,
		}
	}

	e.logger.Debug("handler finished",
		"run_id", req.RunID,
		"step", step.Name,
		"duration", time.Since(start))

	return &Result{Outputs: output}, nil
}
