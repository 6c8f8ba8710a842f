package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/domain"
)

// TimerExecutor исполняет wait_timer-шаги.
//
// Вычисляет момент срабатывания (now + delay_ms) и возвращает
// Suspension с ключом таймера. Run приостановится до доставки
// timer fired.
type TimerExecutor struct {
	logger *slog.Logger

	// now подменяется в тестах
	now func() time.Time
}

// NewTimerExecutor создаёт исполнитель wait_timer-шагов.
func NewTimerExecutor(logger *slog.Logger) *TimerExecutor {
	return &TimerExecutor{
		logger: logger,
		now:    time.Now,
	}
}

func (e *TimerExecutor) Type() domain.StepType {
	return domain.StepTypeWaitTimer
}

func (e *TimerExecutor) Execute(_ context.Context, req *Request) (*Result, error) {
	token := uuid.New()
	fireAt := e.now().Add(time.Duration(req.Step.DelayMs) * time.Millisecond)

	e.logger.Debug("step awaiting timer",
		"run_id", req.RunID,
		"step", req.Step.Name,
		"timer_key", req.Step.TimerKey,
		"fire_at", fireAt)

	return &Result{
		Suspension: &Suspension{
			Token:    token,
			TimerKey: req.Step.TimerKey,
			FireAt:   fireAt,
		},
	}, nil
}
