package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — экземпляр выполнения flow.
//
// Run создаётся, когда триггер запускает именованный flow с набором
// параметров. Состояние run (статусы шагов, накопленные outputs,
// общий статус) мутируется исключительно движком (runtime.Engine)
// под блокировкой run — один писатель на run.
//
// Терминальный run остаётся доступным для запросов.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// FlowName — имя определения flow, которое выполняется.
	FlowName string `json:"flow_name"`

	// Params — параметры триггера.
	// Доступны шаблонам как {{param_name}}.
	Params map[string]any `json:"params,omitempty"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// StepStates — состояние каждого шага (имя шага → StepState).
	// Принадлежит run эксклюзивно, никогда не разделяется между runs.
	StepStates map[string]*StepState `json:"step_states"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время создания и старта run.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время достижения терминального статуса.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRun создаёт run в статусе RUNNING с PENDING-состояниями
// для всех шагов определения.
func NewRun(def *FlowDefinition, params map[string]any) *Run {
	if params == nil {
		params = make(map[string]any)
	}

	states := make(map[string]*StepState, len(def.Steps))
	for i := range def.Steps {
		states[def.Steps[i].Name] = &StepState{Status: StepStatusPending}
	}

	return &Run{
		ID:         uuid.New(),
		FlowName:   def.Name,
		Params:     params,
		Status:     RunStatusRunning,
		StepStates: states,
		StartedAt:  time.Now(),
	}
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// State возвращает состояние шага по имени (nil, если шаг неизвестен).
func (r *Run) State(stepName string) *StepState {
	return r.StepStates[stepName]
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}

// Clone возвращает глубокую копию run.
// Используется для снапшотов (query-интерфейс отдаёт копию,
// чтобы читатели не наблюдали последующие мутации движка).
func (r *Run) Clone() *Run {
	cp := *r

	cp.Params = cloneMap(r.Params)

	cp.StepStates = make(map[string]*StepState, len(r.StepStates))
	for name, st := range r.StepStates {
		cp.StepStates[name] = st.Clone()
	}

	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}

	return &cp
}

// StepState — состояние одного шага внутри run.
type StepState struct {
	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// Output — результат шага. Заполняется только после SUCCEEDED.
	Output map[string]any `json:"output,omitempty"`

	// Error — причина ошибки. Заполняется только после FAILED.
	Error string `json:"error,omitempty"`

	// SuspendToken — ключ корреляции для возобновления
	// приостановленного wait_signal/wait_timer шага.
	SuspendToken string `json:"suspend_token,omitempty"`

	// StartedAt — время запуска шага.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время достижения терминального статуса.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// MarkRunning переводит шаг в статус RUNNING.
func (s *StepState) MarkRunning() {
	now := time.Now()
	s.Status = StepStatusRunning
	s.StartedAt = &now
}

// MarkSucceeded переводит шаг в статус SUCCEEDED с результатом.
func (s *StepState) MarkSucceeded(output map[string]any) {
	now := time.Now()
	s.Status = StepStatusSucceeded
	s.FinishedAt = &now
	s.Output = output
	s.SuspendToken = ""
}

// MarkFailed переводит шаг в статус FAILED с причиной.
func (s *StepState) MarkFailed(err string) {
	now := time.Now()
	s.Status = StepStatusFailed
	s.FinishedAt = &now
	s.Error = err
	s.SuspendToken = ""
}

// MarkSuspended переводит шаг в статус SUSPENDED с токеном корреляции.
func (s *StepState) MarkSuspended(token string) {
	s.Status = StepStatusSuspended
	s.SuspendToken = token
}

// MarkCancelled переводит шаг в статус CANCELLED.
func (s *StepState) MarkCancelled() {
	now := time.Now()
	s.Status = StepStatusCancelled
	s.FinishedAt = &now
	s.SuspendToken = ""
}

// Clone возвращает глубокую копию состояния шага.
func (s *StepState) Clone() *StepState {
	cp := *s
	cp.Output = cloneMap(s.Output)
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// cloneMap делает поверхностную копию map (значения — JSON-скаляры,
// вложенные map/slice разделяются; движок их не мутирует после записи).
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
