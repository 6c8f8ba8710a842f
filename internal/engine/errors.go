package engine

import (
	"errors"
	"fmt"
)

// Ошибки валидации FlowDefinition.
var (
	// ErrEmptyFlowName — определение без имени.
	ErrEmptyFlowName = errors.New("flow definition has empty name")

	// ErrEmptySteps — определение не содержит шагов.
	ErrEmptySteps = errors.New("flow definition has no steps")

	// ErrEmptyStepName — шаг не имеет имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrDuplicateStepName — несколько шагов с одинаковым именем.
	ErrDuplicateStepName = errors.New("duplicate step name")

	// ErrUnknownStepType — неизвестный тип шага.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrMissingHandler — task-шаг без service_name/handler_name.
	ErrMissingHandler = errors.New("task step has no handler reference")

	// ErrMissingSignalName — wait_signal шаг без имени сигнала.
	ErrMissingSignalName = errors.New("wait_signal step has no signal name")

	// ErrDuplicateSignalName — два wait_signal шага с одним именем
	// сигнала. Доставка сигнала не смогла бы различить их.
	ErrDuplicateSignalName = errors.New("duplicate signal name")

	// ErrMissingTimerKey — wait_timer шаг без ключа таймера.
	ErrMissingTimerKey = errors.New("wait_timer step has no timer key")

	// ErrDuplicateTimerKey — два wait_timer шага с одним ключом.
	// Повторная доставка события таймера не смогла бы различить их.
	ErrDuplicateTimerKey = errors.New("duplicate timer key")

	// ErrNegativeDelay — отрицательная задержка таймера.
	ErrNegativeDelay = errors.New("timer delay is negative")

	// ErrMissingDependency — шаг зависит от несуществующего шага.
	ErrMissingDependency = errors.New("step depends on unknown step")

	// ErrSelfDependency — шаг зависит от самого себя.
	ErrSelfDependency = errors.New("step depends on itself")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// ErrUnresolvedTemplate — идентификатор шаблона не имеет привязки.
// Проявляется только у шага, все зависимости которого успешны,
// то есть указывает на ошибку автора flow, а не на гонку.
var ErrUnresolvedTemplate = errors.New("unresolved template")

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepName string // имя шага, где произошла ошибка
	Field    string // поле, вызвавшее ошибку
	Message  string // описание ошибки
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepName != "" {
		return "step " + e.StepName + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepName, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepName: stepName,
		Field:    field,
		Message:  message,
		Err:      err,
	}
}

// UnresolvedTemplateError — ошибка разрешения шаблона.
type UnresolvedTemplateError struct {
	// Identifier — идентификатор без привязки ("task_id", "step.field").
	Identifier string
}

// Error реализует интерфейс error.
func (e *UnresolvedTemplateError) Error() string {
	return fmt.Sprintf("unresolved template: no binding for {{%s}}", e.Identifier)
}

// Unwrap возвращает базовую ошибку.
func (e *UnresolvedTemplateError) Unwrap() error {
	return ErrUnresolvedTemplate
}
