package runtime

import (
	"fmt"
	"sync"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
	"github.com/shaiso/Relay/internal/executor"
)

// RunState — состояние выполнения одного run в памяти.
//
// Все переходы состояния run проходят через методы RunState под его
// мьютексом: на run есть ровно один писатель в каждый момент времени.
// Исполнители шагов работают вне мьютекса и сообщают результат
// обратно через Engine.
type RunState struct {
	// Run — данные run. Доступ только под mu.
	Run *domain.Run

	// Def — неизменяемое определение flow.
	Def *domain.FlowDefinition

	// DAG — граф зависимостей шагов.
	DAG *engine.DAG

	// Bindings — значения для шаблонов: параметры триггера
	// плюс outputs успешно завершённых шагов.
	Bindings *engine.Bindings

	mu sync.Mutex
}

// NewRunState создаёт RunState для нового run.
// Определение уже валидировано при регистрации, поэтому построение
// графа может упасть только на повреждённом определении.
func NewRunState(def *domain.FlowDefinition, run *domain.Run) (*RunState, error) {
	dag, err := engine.BuildDAG(def)
	if err != nil {
		return nil, fmt.Errorf("build DAG: %w", err)
	}

	return &RunState{
		Run:      run,
		Def:      def,
		DAG:      dag,
		Bindings: engine.NewBindings(run.Params),
	}, nil
}

// WithLock выполняет fn под мьютексом run.
// Все последовательности "прочитать → решить → перевести" обязаны
// проходить через WithLock, иначе два события могут увидеть одно
// и то же состояние.
func (s *RunState) WithLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Snapshot возвращает глубокую копию run.
func (s *RunState) Snapshot() *domain.Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.Run.Clone()
}

// Status возвращает текущий статус run.
func (s *RunState) Status() domain.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.Run.Status
}

// Методы ниже вызываются только под mu (из WithLock).

// readySteps возвращает шаги, готовые к запуску: PENDING, все
// зависимости SUCCEEDED. Порядок — порядок объявления в определении.
func (s *RunState) readySteps() []*engine.Node {
	if s.Run.Status != domain.RunStatusRunning && s.Run.Status != domain.RunStatusSuspended {
		return nil
	}

	statuses := make(map[string]domain.StepStatus, len(s.Run.StepStates))
	for name, st := range s.Run.StepStates {
		statuses[name] = st.Status
	}

	return s.DAG.ReadySteps(statuses)
}

// markRunning переводит шаг PENDING → RUNNING.
func (s *RunState) markRunning(stepName string) {
	s.Run.StepStates[stepName].MarkRunning()
	s.recomputeStatus()
}

// completeStep переводит шаг в SUCCEEDED и публикует его output
// для шаблонов последующих шагов.
func (s *RunState) completeStep(stepName string, output map[string]any) {
	s.Run.StepStates[stepName].MarkSucceeded(output)
	s.Bindings.AddStepOutput(stepName, output)
	s.recomputeStatus()
}

// failStep переводит шаг в FAILED и каскадно помечает все
// транзитивно зависящие шаги FAILED. Обработчики зависящих шагов
// не вызываются.
//
// Обход идёт в топологическом порядке, поэтому каждый зависимый шаг
// помечается после своих зависимостей и причиной указывает ближайшую
// упавшую зависимость, а не исходный шаг каскада.
func (s *RunState) failStep(stepName string, cause error) {
	s.Run.StepStates[stepName].MarkFailed(cause.Error())

	for _, node := range s.DAG.Order {
		st := s.Run.StepStates[node.Name]
		if st.Status.IsTerminal() {
			continue
		}
		for _, dep := range node.DependsOn {
			if s.Run.StepStates[dep.Name].Status == domain.StepStatusFailed {
				st.MarkFailed(fmt.Sprintf("upstream failure: %s", dep.Name))
				break
			}
		}
	}

	s.recomputeStatus()
}

// suspendStep переводит шаг RUNNING → SUSPENDED с токеном возобновления.
func (s *RunState) suspendStep(stepName string, susp *executor.Suspension) {
	s.Run.StepStates[stepName].MarkSuspended(susp.Token.String())
	s.recomputeStatus()
}

// resumeStep переводит шаг SUSPENDED → SUCCEEDED.
// output — полезная нагрузка сигнала (пустая для таймеров).
func (s *RunState) resumeStep(stepName string, output map[string]any) error {
	st := s.Run.StepStates[stepName]
	if st.Status != domain.StepStatusSuspended {
		return fmt.Errorf("%w: %s in status %s", ErrStepNotWaiting, stepName, st.Status)
	}

	if output == nil {
		output = make(map[string]any)
	}
	st.MarkSucceeded(output)
	s.Bindings.AddStepOutput(stepName, output)
	s.recomputeStatus()

	return nil
}

// cancel помечает все нетерминальные шаги CANCELLED и завершает run.
// Уже выполняющиеся обработчики не прерываются, но их результат
// будет отброшен: шаг к моменту возврата уже терминален.
func (s *RunState) cancel() error {
	if s.Run.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrRunFinished, s.Run.Status)
	}

	for _, st := range s.Run.StepStates {
		if !st.Status.IsTerminal() {
			st.MarkCancelled()
		}
	}
	s.Run.MarkCancelled()

	return nil
}

// rehydrate восстанавливает производное состояние после загрузки
// run из хранилища: outputs завершённых шагов возвращаются в
// Bindings, а шаги, застигнутые в RUNNING, сбрасываются в PENDING —
// исход их обработчиков неизвестен, и они будут запущены заново.
func (s *RunState) rehydrate() {
	for name, st := range s.Run.StepStates {
		switch st.Status {
		case domain.StepStatusSucceeded:
			s.Bindings.AddStepOutput(name, st.Output)
		case domain.StepStatusRunning:
			st.Status = domain.StepStatusPending
			st.StartedAt = nil
		}
	}
	s.recomputeStatus()
}

// recomputeStatus выводит статус run из статусов шагов.
//
// Правила:
//   - все шаги терминальны: FAILED при хотя бы одном провале,
//     иначе SUCCEEDED
//   - есть нетерминальные шаги: SUSPENDED, если никто не выполняется
//     и нет готовых шагов, но есть приостановленные; иначе RUNNING
//
// CANCELLED выставляется только явной отменой и здесь не трогается.
func (s *RunState) recomputeStatus() {
	if s.Run.Status.IsTerminal() {
		return
	}

	allTerminal := true
	anyFailed := false
	anyRunning := false
	anySuspended := false

	for _, st := range s.Run.StepStates {
		switch st.Status {
		case domain.StepStatusFailed:
			anyFailed = true
		case domain.StepStatusRunning:
			allTerminal = false
			anyRunning = true
		case domain.StepStatusSuspended:
			allTerminal = false
			anySuspended = true
		case domain.StepStatusPending:
			allTerminal = false
		}
	}

	if allTerminal {
		if anyFailed {
			s.Run.MarkFailed(firstFailure(s))
		} else {
			s.Run.MarkSucceeded()
		}
		return
	}

	if !anyRunning && anySuspended && len(s.readyAmongPending()) == 0 {
		s.Run.Status = domain.RunStatusSuspended
	} else {
		s.Run.Status = domain.RunStatusRunning
	}
}

// readyAmongPending — готовые шаги без учёта статуса run.
// Используется из recomputeStatus, где статус run ещё переопределяется.
func (s *RunState) readyAmongPending() []*engine.Node {
	statuses := make(map[string]domain.StepStatus, len(s.Run.StepStates))
	for name, st := range s.Run.StepStates {
		statuses[name] = st.Status
	}
	return s.DAG.ReadySteps(statuses)
}

// firstFailure возвращает ошибку первого упавшего шага в порядке
// объявления.
func firstFailure(s *RunState) string {
	for _, node := range s.DAG.Ordered {
		st := s.Run.StepStates[node.Name]
		if st.Status == domain.StepStatusFailed {
			return fmt.Sprintf("step %s: %s", node.Name, st.Error)
		}
	}
	return "run failed"
}
