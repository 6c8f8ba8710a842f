package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/domain"
)

// Request — запрос на исполнение одного шага.
// InputData шага уже разрешён шаблонным резолвером.
type Request struct {
	RunID    uuid.UUID
	FlowName string
	Step     *domain.Step
	Input    map[string]any
}

// Suspension — описание приостановки шага до внешнего события.
// Token идентифицирует место возобновления.
type Suspension struct {
	Token      uuid.UUID
	SignalName string
	TimerKey   string
	FireAt     time.Time
}

// Result — результат исполнения шага.
// Ровно одно из полей заполнено: Outputs при завершении шага,
// Suspension при приостановке.
type Result struct {
	Outputs    map[string]any
	Suspension *Suspension
}

// Executor исполняет шаги одного типа.
type Executor interface {
	// Type возвращает тип шага, который исполняет этот executor.
	Type() domain.StepType

	// Execute исполняет шаг. Ошибка означает провал шага.
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Registry — реестр исполнителей по типу шага.
type Registry struct {
	executors map[domain.StepType]Executor
}

// NewRegistry создаёт пустой реестр исполнителей.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.StepType]Executor),
	}
}

// Register регистрирует исполнитель для его типа шага.
func (r *Registry) Register(e Executor) {
	r.executors[e.Type()] = e
}

// Get возвращает исполнитель для типа шага.
func (r *Registry) Get(t domain.StepType) (Executor, error) {
	e, exists := r.executors[t]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, t)
	}
	return e, nil
}

// Execute разрешает исполнитель по типу шага и исполняет запрос.
func (r *Registry) Execute(ctx context.Context, req *Request) (*Result, error) {
	e, err := r.Get(req.Step.Type)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, req)
}
