package engine

import (
	"fmt"

	"github.com/shaiso/Relay/internal/domain"
)

// Validate выполняет полную валидацию FlowDefinition.
//
// Проверяет:
//   - Наличие имени и шагов
//   - Уникальность имён шагов
//   - Корректность типов и обязательных полей каждого варианта
//   - Уникальность имён сигналов и ключей таймеров внутри определения
//   - Валидность зависимостей (depends_on)
//   - Отсутствие циклов (делегируется BuildDAG)
//
// Валидация выполняется при регистрации определения: невалидный
// граф отклоняется до того, как какой-либо run может быть запущен.
func Validate(def *domain.FlowDefinition) error {
	if def == nil || def.Name == "" {
		return ErrEmptyFlowName
	}

	if len(def.Steps) == 0 {
		return ErrEmptySteps
	}

	stepNames := make(map[string]bool, len(def.Steps))
	signalNames := make(map[string]string)
	timerKeys := make(map[string]string)

	for i := range def.Steps {
		step := &def.Steps[i]

		if err := validateStep(step, stepNames, signalNames, timerKeys); err != nil {
			return err
		}
	}

	if err := validateDependencies(def.Steps, stepNames); err != nil {
		return err
	}

	// Проверка на циклы — построением графа
	if _, err := BuildDAG(def); err != nil {
		return err
	}

	return nil
}

// validateStep валидирует один шаг.
// stepNames — уже встреченные имена (для проверки уникальности).
// signalNames — уже встреченные имена сигналов (имя → имя шага).
// timerKeys — уже встреченные ключи таймеров (ключ → имя шага).
func validateStep(step *domain.Step, stepNames map[string]bool, signalNames, timerKeys map[string]string) error {
	if step.Name == "" {
		return NewValidationError("", "name", "step has empty name", ErrEmptyStepName)
	}

	if stepNames[step.Name] {
		return NewValidationError(step.Name, "name",
			fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
	}
	stepNames[step.Name] = true

	// Проверка self-dependency
	for _, dep := range step.DependsOn {
		if dep == step.Name {
			return NewValidationError(step.Name, "depends_on",
				"step depends on itself", ErrSelfDependency)
		}
	}

	// Вариант-специфичные поля
	switch step.Type {
	case domain.StepTypeTask:
		if step.ServiceName == "" || step.HandlerName == "" {
			return NewValidationError(step.Name, "handler",
				"task step requires service_name and handler_name", ErrMissingHandler)
		}

	case domain.StepTypeWaitSignal:
		if step.SignalName == "" {
			return NewValidationError(step.Name, "signal_name",
				"wait_signal step requires signal_name", ErrMissingSignalName)
		}
		if other, exists := signalNames[step.SignalName]; exists {
			return NewValidationError(step.Name, "signal_name",
				fmt.Sprintf("signal name %q already used by step %s", step.SignalName, other),
				ErrDuplicateSignalName)
		}
		signalNames[step.SignalName] = step.Name

	case domain.StepTypeWaitTimer:
		if step.TimerKey == "" {
			return NewValidationError(step.Name, "timer_key",
				"wait_timer step requires timer_key", ErrMissingTimerKey)
		}
		if step.DelayMs < 0 {
			return NewValidationError(step.Name, "delay_ms",
				fmt.Sprintf("negative delay: %d", step.DelayMs), ErrNegativeDelay)
		}
		if other, exists := timerKeys[step.TimerKey]; exists {
			return NewValidationError(step.Name, "timer_key",
				fmt.Sprintf("timer key %q already used by step %s", step.TimerKey, other),
				ErrDuplicateTimerKey)
		}
		timerKeys[step.TimerKey] = step.Name

	default:
		return NewValidationError(step.Name, "type",
			fmt.Sprintf("unknown step type: %s", step.Type), ErrUnknownStepType)
	}

	return nil
}

// validateDependencies проверяет, что все depends_on ссылаются
// на существующие шаги.
func validateDependencies(steps []domain.Step, stepNames map[string]bool) error {
	for i := range steps {
		step := &steps[i]

		for _, dep := range step.DependsOn {
			if !stepNames[dep] {
				return NewValidationError(step.Name, "depends_on",
					fmt.Sprintf("depends on unknown step: %s", dep), ErrMissingDependency)
			}
		}
	}

	return nil
}

// IsValidStepType проверяет, является ли тип шага допустимым.
func IsValidStepType(t domain.StepType) bool {
	switch t {
	case domain.StepTypeTask, domain.StepTypeWaitSignal, domain.StepTypeWaitTimer:
		return true
	default:
		return false
	}
}
