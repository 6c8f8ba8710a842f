package executor

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/domain"
)

// SignalExecutor исполняет wait_signal-шаги.
//
// Шаг не выполняет работы: исполнение сразу возвращает Suspension
// с именем сигнала и свежим токеном возобновления. Run приостановится,
// пока сигнал не будет доставлен.
type SignalExecutor struct {
	logger *slog.Logger
}

// NewSignalExecutor создаёт исполнитель wait_signal-шагов.
func NewSignalExecutor(logger *slog.Logger) *SignalExecutor {
	return &SignalExecutor{logger: logger}
}

func (e *SignalExecutor) Type() domain.StepType {
	return domain.StepTypeWaitSignal
}

func (e *SignalExecutor) Execute(_ context.Context, req *Request) (*Result, error) {
	token := uuid.New()

	e.logger.Debug("step awaiting signal",
		"run_id", req.RunID,
		"step", req.Step.Name,
		"signal", req.Step.SignalName,
		"token", token)

	return &Result{
		Suspension: &Suspension{
			Token:      token,
			SignalName: req.Step.SignalName,
		},
	}, nil
}
