package worker

import (
	"context"

	"github.com/google/uuid"
)

// TimerPublisher публикует срабатывание таймера в шину событий.
// Реализуется coordinator.Publisher.
type TimerPublisher interface {
	PublishTimer(ctx context.Context, runID uuid.UUID, timerKey string) error
}

// BusFirer направляет срабатывания durable-таймеров в шину вместо
// прямого вызова движка. Срабатывание возвращается через consumer
// очереди событий, то есть проходит через брокер с его retry-семантикой
// и видно остальным участникам протокола.
type BusFirer struct {
	Publisher TimerPublisher
}

// DeliverTimer реализует timers.Firer.
func (f BusFirer) DeliverTimer(ctx context.Context, runID uuid.UUID, timerKey string) error {
	return f.Publisher.PublishTimer(ctx, runID, timerKey)
}
