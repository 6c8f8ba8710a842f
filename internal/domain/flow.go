package domain

// FlowDefinition — определение рабочего процесса.
//
// FlowDefinition — это неизменяемый "шаблон" flow: именованный набор
// шагов с зависимостями. Регистрируется один раз при старте воркера
// (через registry.FlowRegistry) и далее не модифицируется.
// Каждое выполнение (Run) ссылается на определение по имени.
type FlowDefinition struct {
	// Name — уникальное имя flow (например, "simple_sequence").
	// Используется триггером для поиска определения.
	Name string `json:"name"`

	// Steps — шаги в порядке объявления.
	// Порядок объявления фиксирует детерминизм планировщика:
	// готовые шаги возвращаются именно в этом порядке.
	Steps []Step `json:"steps"`
}

// StepNames возвращает имена шагов в порядке объявления.
func (d *FlowDefinition) StepNames() []string {
	names := make([]string, len(d.Steps))
	for i := range d.Steps {
		names[i] = d.Steps[i].Name
	}
	return names
}

// FindStep возвращает шаг по имени или nil.
func (d *FlowDefinition) FindStep(name string) *Step {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// StepType — тип шага.
type StepType string

// Типы шагов.
const (
	// StepTypeTask — вызов зарегистрированного обработчика.
	StepTypeTask StepType = "task"

	// StepTypeWaitSignal — ожидание внешнего сигнала.
	StepTypeWaitSignal StepType = "wait_signal"

	// StepTypeWaitTimer — ожидание истечения таймера.
	StepTypeWaitTimer StepType = "wait_timer"
)

// Step — один шаг flow.
//
// Step — размеченное объединение: поле Type определяет вариант,
// заполненные поля зависят от варианта. Исполнитель (executor)
// делает исчерпывающий switch по Type.
type Step struct {
	// Name — уникальный в рамках определения идентификатор шага.
	Name string `json:"name"`

	// Type — вариант шага: task, wait_signal, wait_timer.
	Type StepType `json:"type"`

	// DependsOn — имена шагов, которые должны успешно завершиться
	// до того, как этот шаг станет готов к выполнению.
	DependsOn []string `json:"depends_on,omitempty"`

	// --- task ---

	// ServiceName — имя сервиса, в котором зарегистрирован обработчик.
	ServiceName string `json:"service_name,omitempty"`

	// HandlerName — имя обработчика.
	HandlerName string `json:"handler_name,omitempty"`

	// InputData — входные данные обработчика.
	// Строки могут содержать шаблоны {{param}} и {{step.field}};
	// они разрешаются непосредственно перед запуском шага.
	InputData map[string]any `json:"input_data,omitempty"`

	// --- wait_signal ---

	// SignalName — имя внешнего сигнала (ключ корреляции).
	SignalName string `json:"signal_name,omitempty"`

	// --- wait_timer ---

	// TimerKey — идентификатор durable-таймера.
	// Должен быть уникален в рамках run, иначе повторная доставка
	// события таймера может разбудить не тот шаг.
	TimerKey string `json:"timer_key,omitempty"`

	// DelayMs — задержка таймера в миллисекундах (неотрицательная).
	DelayMs int64 `json:"delay_ms,omitempty"`
}

// TaskStep создаёт шаг вызова обработчика.
func TaskStep(name, serviceName, handlerName string, input map[string]any, dependsOn ...string) Step {
	return Step{
		Name:        name,
		Type:        StepTypeTask,
		DependsOn:   dependsOn,
		ServiceName: serviceName,
		HandlerName: handlerName,
		InputData:   input,
	}
}

// WaitSignalStep создаёт шаг ожидания внешнего сигнала.
func WaitSignalStep(name, signalName string, dependsOn ...string) Step {
	return Step{
		Name:       name,
		Type:       StepTypeWaitSignal,
		DependsOn:  dependsOn,
		SignalName: signalName,
	}
}

// WaitTimerStep создаёт шаг ожидания таймера.
func WaitTimerStep(name, timerKey string, delayMs int64, dependsOn ...string) Step {
	return Step{
		Name:      name,
		Type:      StepTypeWaitTimer,
		DependsOn: dependsOn,
		TimerKey:  timerKey,
		DelayMs:   delayMs,
	}
}
