package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
	"github.com/shaiso/Relay/internal/executor"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/telemetry"
)

// Store сохраняет снапшоты run. Движок пишет сквозным образом
// после каждого перехода; чтение при работе идёт из памяти.
type Store interface {
	SaveRun(ctx context.Context, run *domain.Run) error
}

// TimerScheduler регистрирует durable-таймеры приостановленных
// wait_timer шагов. Срабатывание возвращается в движок через
// DeliverTimer.
type TimerScheduler interface {
	Schedule(ctx context.Context, runID uuid.UUID, timerKey string, token uuid.UUID, fireAt time.Time) error
	CancelRun(ctx context.Context, runID uuid.UUID) error
}

// signalWait идентифицирует ожидание сигнала.
type signalWait struct {
	runID  uuid.UUID
	signal string
}

// timerWait идентифицирует ожидание таймера.
type timerWait struct {
	runID uuid.UUID
	key   string
}

// Engine — ядро выполнения flow.
//
// Управляет жизненным циклом runs: запускает готовые шаги (независимые
// шаги параллельно, в отдельных горутинах), разрешает шаблоны входных
// данных, приостанавливает run на wait-шагах и возобновляет его при
// доставке сигналов и срабатывании таймеров.
//
// Доставки идемпотентны: повторная доставка сигнала или таймера,
// которого никто не ждёт, поглощается без эффекта.
type Engine struct {
	flows     *registry.FlowRegistry
	executors *executor.Registry
	store     Store
	timers    TimerScheduler
	logger    *slog.Logger

	// active — выполняющиеся и приостановленные runs.
	// archive — терминальные runs, доступные для запросов.
	active  map[uuid.UUID]*RunState
	archive map[uuid.UUID]*RunState

	// Индексы ожиданий: какое событие возобновляет какой шаг.
	signalWaits map[signalWait]string
	timerWaits  map[timerWait]string

	// onFinish вызывается со снапшотом терминального run.
	onFinish func(run *domain.Run)

	mu sync.RWMutex
	wg sync.WaitGroup
}

// Config — конфигурация Engine.
type Config struct {
	Flows     *registry.FlowRegistry
	Executors *executor.Registry

	// Store — опциональное сквозное сохранение (nil — без персистентности).
	Store Store

	// Timers — опциональный планировщик таймеров (nil — таймеры
	// доставляются только извне через DeliverTimer).
	Timers TimerScheduler

	Logger *slog.Logger
}

// New создаёт Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		flows:       cfg.Flows,
		executors:   cfg.Executors,
		store:       cfg.Store,
		timers:      cfg.Timers,
		logger:      logger,
		active:      make(map[uuid.UUID]*RunState),
		archive:     make(map[uuid.UUID]*RunState),
		signalWaits: make(map[signalWait]string),
		timerWaits:  make(map[timerWait]string),
	}
}

// OnFinish регистрирует колбэк завершения runs.
// Вызывается до запуска первого run; колбэк получает снапшот
// терминального run и исполняется вне блокировок движка.
func (e *Engine) OnFinish(fn func(run *domain.Run)) {
	e.onFinish = fn
}

// StartFlow запускает новый run именованного flow.
//
// Каждый вызов создаёт независимый run со своим идентификатором.
// Возвращает снапшот run после запуска стартовых шагов.
func (e *Engine) StartFlow(ctx context.Context, flowName string, params map[string]any) (*domain.Run, error) {
	def, err := e.flows.Lookup(flowName)
	if err != nil {
		return nil, err
	}

	run := domain.NewRun(def, params)
	state, err := NewRunState(def, run)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.active[run.ID] = state
	e.mu.Unlock()

	telemetry.RunsStarted.WithLabelValues(flowName).Inc()
	e.logger.Info("run started",
		"run_id", run.ID,
		"flow", flowName)

	e.persist(ctx, state)
	e.advance(ctx, state)

	return state.Snapshot(), nil
}

// RunLister загружает нетерминальные runs из хранилища.
// Реализуется repo.RunRepo (ListActive).
type RunLister interface {
	ListActive(ctx context.Context) ([]*domain.Run, error)
}

// Restore поднимает нетерминальные runs из хранилища и продолжает
// их выполнение. Вызывается один раз при старте, до приёма внешних
// доставок.
//
// Шаги, застигнутые в RUNNING, перезапускаются: их исход неизвестен.
// Для приостановленных wait-шагов переиндексируются ожидания; durable
// таймеры переживают рестарт в своём хранилище и доиграют сами.
// Run незарегистрированного flow пропускается с предупреждением.
func (e *Engine) Restore(ctx context.Context, lister RunLister) (int, error) {
	runs, err := lister.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active runs: %w", err)
	}

	restored := 0
	for _, run := range runs {
		def, err := e.flows.Lookup(run.FlowName)
		if err != nil {
			e.logger.Warn("restore skipped, flow not registered",
				"run_id", run.ID,
				"flow", run.FlowName)
			continue
		}

		state, err := NewRunState(def, run)
		if err != nil {
			e.logger.Error("restore failed",
				"run_id", run.ID,
				"flow", run.FlowName,
				"error", err)
			continue
		}

		e.mu.Lock()
		e.active[run.ID] = state
		e.mu.Unlock()

		state.WithLock(func() {
			state.rehydrate()
			for i := range def.Steps {
				step := &def.Steps[i]
				st := state.Run.StepStates[step.Name]
				if st == nil || st.Status != domain.StepStatusSuspended {
					continue
				}
				e.indexWait(run.ID, step.Name, &executor.Suspension{
					SignalName: step.SignalName,
					TimerKey:   step.TimerKey,
				})
				telemetry.SuspendedSteps.Inc()
			}
		})

		restored++
		e.logger.Info("run restored",
			"run_id", run.ID,
			"flow", run.FlowName,
			"status", state.Status())

		e.advance(ctx, state)
	}

	return restored, nil
}

// GetRun возвращает снапшот run по идентификатору.
// Терминальные runs остаются доступными.
func (e *Engine) GetRun(runID uuid.UUID) (*domain.Run, error) {
	state, err := e.lookupState(runID)
	if err != nil {
		return nil, err
	}
	return state.Snapshot(), nil
}

// ListRuns возвращает снапшоты всех известных runs.
func (e *Engine) ListRuns() []*domain.Run {
	e.mu.RLock()
	states := make([]*RunState, 0, len(e.active)+len(e.archive))
	for _, s := range e.active {
		states = append(states, s)
	}
	for _, s := range e.archive {
		states = append(states, s)
	}
	e.mu.RUnlock()

	runs := make([]*domain.Run, len(states))
	for i, s := range states {
		runs[i] = s.Snapshot()
	}
	return runs
}

// CancelRun отменяет выполняющийся или приостановленный run.
//
// Все нетерминальные шаги помечаются CANCELLED, обработчики зависших
// шагов не вызываются. Отмена терминального run — ошибка ErrRunFinished.
func (e *Engine) CancelRun(ctx context.Context, runID uuid.UUID) error {
	state, err := e.lookupState(runID)
	if err != nil {
		return err
	}

	var cancelErr error
	state.WithLock(func() {
		cancelErr = state.cancel()
	})
	if cancelErr != nil {
		return cancelErr
	}

	e.logger.Info("run cancelled", "run_id", runID)
	e.finalize(ctx, state)

	return nil
}

// DeliverSignal доставляет именованный сигнал в run.
//
// Если run приостановлен на wait_signal с этим именем, шаг
// завершается с payload в качестве output и выполнение продолжается.
// Доставка в run, который не ждёт этот сигнал (включая повторную
// доставку), — no-op.
func (e *Engine) DeliverSignal(ctx context.Context, runID uuid.UUID, signalName string, payload map[string]any) error {
	state, err := e.lookupState(runID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	key := signalWait{runID: runID, signal: signalName}
	stepName, waiting := e.signalWaits[key]
	if waiting {
		delete(e.signalWaits, key)
	}
	e.mu.Unlock()

	if !waiting {
		e.logger.Debug("signal ignored, no step waiting",
			"run_id", runID,
			"signal", signalName)
		return nil
	}

	var resumeErr error
	state.WithLock(func() {
		resumeErr = state.resumeStep(stepName, payload)
	})
	if resumeErr != nil {
		// Шаг успел стать терминальным (отмена) — доставка поглощается
		e.logger.Debug("signal dropped, step no longer suspended",
			"run_id", runID,
			"signal", signalName,
			"step", stepName)
		return nil
	}

	telemetry.SignalsDelivered.WithLabelValues(signalName).Inc()
	telemetry.SuspendedSteps.Dec()
	e.logger.Info("signal delivered",
		"run_id", runID,
		"signal", signalName,
		"step", stepName)

	e.persist(ctx, state)
	e.advance(ctx, state)

	return nil
}

// DeliverTimer доставляет срабатывание таймера в run.
// Повторное срабатывание того же ключа — no-op.
func (e *Engine) DeliverTimer(ctx context.Context, runID uuid.UUID, timerKey string) error {
	state, err := e.lookupState(runID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	key := timerWait{runID: runID, key: timerKey}
	stepName, waiting := e.timerWaits[key]
	if waiting {
		delete(e.timerWaits, key)
	}
	e.mu.Unlock()

	if !waiting {
		e.logger.Debug("timer ignored, no step waiting",
			"run_id", runID,
			"timer_key", timerKey)
		return nil
	}

	var resumeErr error
	state.WithLock(func() {
		resumeErr = state.resumeStep(stepName, nil)
	})
	if resumeErr != nil {
		e.logger.Debug("timer dropped, step no longer suspended",
			"run_id", runID,
			"timer_key", timerKey,
			"step", stepName)
		return nil
	}

	telemetry.TimersFired.Inc()
	telemetry.SuspendedSteps.Dec()
	e.logger.Info("timer fired",
		"run_id", runID,
		"timer_key", timerKey,
		"step", stepName)

	e.persist(ctx, state)
	e.advance(ctx, state)

	return nil
}

// Wait блокируется до завершения всех запущенных шагов.
// Используется при остановке и в тестах.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// lookupState находит RunState среди активных и архивных runs.
func (e *Engine) lookupState(runID uuid.UUID) (*RunState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if state, ok := e.active[runID]; ok {
		return state, nil
	}
	if state, ok := e.archive[runID]; ok {
		return state, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// advance запускает все готовые шаги run.
//
// Готовность и перевод в RUNNING происходят атомарно под блокировкой
// run, затем каждый шаг исполняется в своей горутине. Независимые
// готовые шаги выполняются параллельно.
func (e *Engine) advance(ctx context.Context, state *RunState) {
	type launch struct {
		step  *domain.Step
		input map[string]any
	}
	var launches []launch

	state.WithLock(func() {
		for _, node := range state.readySteps() {
			input, err := engine.ResolveInput(node.Step.InputData, state.Bindings)
			if err != nil {
				e.logger.Error("template resolution failed",
					"run_id", state.Run.ID,
					"step", node.Name,
					"error", err)
				state.failStep(node.Name, err)
				telemetry.StepsExecuted.WithLabelValues(string(node.Step.Type), string(domain.StepStatusFailed)).Inc()
				continue
			}

			state.markRunning(node.Name)
			launches = append(launches, launch{step: node.Step, input: input})
		}
	})

	for _, l := range launches {
		e.wg.Add(1)
		go func(step *domain.Step, input map[string]any) {
			defer e.wg.Done()
			e.executeStep(ctx, state, step, input)
		}(l.step, l.input)
	}

	if len(launches) == 0 {
		e.afterTransition(ctx, state)
	}
}

// executeStep исполняет один шаг и применяет результат.
func (e *Engine) executeStep(ctx context.Context, state *RunState, step *domain.Step, input map[string]any) {
	log := telemetry.StepLogger(
		telemetry.RunLogger(e.logger, state.Run.ID.String(), state.Run.FlowName),
		step.Name)
	start := time.Now()

	result, execErr := e.executors.Execute(ctx, &executor.Request{
		RunID:    state.Run.ID,
		FlowName: state.Run.FlowName,
		Step:     step,
		Input:    input,
	})

	telemetry.StepDuration.WithLabelValues(string(step.Type)).Observe(time.Since(start).Seconds())

	var suspension *executor.Suspension

	state.WithLock(func() {
		st := state.Run.StepStates[step.Name]
		if st.Status != domain.StepStatusRunning {
			// Run отменён, пока шаг выполнялся — результат отбрасывается
			log.Debug("step result discarded", "status", st.Status)
			return
		}

		switch {
		case execErr != nil:
			log.Error("step failed", "error", execErr)
			state.failStep(step.Name, execErr)
			telemetry.StepsExecuted.WithLabelValues(string(step.Type), string(domain.StepStatusFailed)).Inc()

		case result.Suspension != nil:
			suspension = result.Suspension
			state.suspendStep(step.Name, suspension)
			// Индекс ожидания под той же блокировкой, что и переход
			// в SUSPENDED: доставка не может проскочить между ними
			e.indexWait(state.Run.ID, step.Name, suspension)
			telemetry.SuspendedSteps.Inc()

		default:
			log.Debug("step succeeded")
			state.completeStep(step.Name, result.Outputs)
			telemetry.StepsExecuted.WithLabelValues(string(step.Type), string(domain.StepStatusSucceeded)).Inc()
		}
	})

	if suspension != nil {
		e.registerWait(ctx, state, step.Name, suspension)
	}

	e.persist(ctx, state)
	e.advance(ctx, state)
}

// indexWait записывает ожидание шага в индексы доставки.
// Вызывается под блокировкой run; e.mu никогда не удерживается
// при взятии блокировки run, поэтому вложение безопасно.
func (e *Engine) indexWait(runID uuid.UUID, stepName string, susp *executor.Suspension) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if susp.SignalName != "" {
		e.signalWaits[signalWait{runID: runID, signal: susp.SignalName}] = stepName
	}
	if susp.TimerKey != "" {
		e.timerWaits[timerWait{runID: runID, key: susp.TimerKey}] = stepName
	}
}

// registerWait регистрирует срабатывание durable-таймера
// у планировщика и логирует приостановку.
func (e *Engine) registerWait(ctx context.Context, state *RunState, stepName string, susp *executor.Suspension) {
	runID := state.Run.ID

	if susp.TimerKey != "" && e.timers != nil {
		if err := e.timers.Schedule(ctx, runID, susp.TimerKey, susp.Token, susp.FireAt); err != nil {
			e.logger.Error("schedule timer",
				"run_id", runID,
				"timer_key", susp.TimerKey,
				"error", err)
		}
	}

	e.logger.Info("run suspended",
		"run_id", runID,
		"step", stepName,
		"signal", susp.SignalName,
		"timer_key", susp.TimerKey)
}

// afterTransition финализирует run, если он достиг терминального
// статуса, не запустив новых шагов.
func (e *Engine) afterTransition(ctx context.Context, state *RunState) {
	if state.Status().IsTerminal() {
		e.finalize(ctx, state)
	}
}

// finalize переносит терминальный run в архив и освобождает
// регистрации ожиданий.
func (e *Engine) finalize(ctx context.Context, state *RunState) {
	runID := state.Run.ID

	e.mu.Lock()
	if _, ok := e.active[runID]; !ok {
		// Уже финализирован конкурентным переходом
		e.mu.Unlock()
		return
	}
	delete(e.active, runID)
	e.archive[runID] = state

	// Каждый приостановленный шаг держит ровно одну запись ожидания,
	// поэтому число удалённых записей равно числу неразрешённых
	// приостановок.
	released := 0
	for key := range e.signalWaits {
		if key.runID == runID {
			delete(e.signalWaits, key)
			released++
		}
	}
	for key := range e.timerWaits {
		if key.runID == runID {
			delete(e.timerWaits, key)
			released++
		}
	}
	e.mu.Unlock()

	if released > 0 {
		telemetry.SuspendedSteps.Sub(float64(released))
	}

	if e.timers != nil {
		if err := e.timers.CancelRun(ctx, runID); err != nil {
			e.logger.Error("cancel timers", "run_id", runID, "error", err)
		}
	}

	snapshot := state.Snapshot()
	telemetry.RunsCompleted.WithLabelValues(snapshot.FlowName, string(snapshot.Status)).Inc()
	e.logger.Info("run finished",
		"run_id", runID,
		"flow", snapshot.FlowName,
		"status", snapshot.Status,
		"duration", snapshot.Duration())

	e.persist(ctx, state)

	if e.onFinish != nil {
		e.onFinish(snapshot)
	}
}

// persist сохраняет снапшот run, если хранилище настроено.
func (e *Engine) persist(ctx context.Context, state *RunState) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveRun(ctx, state.Snapshot()); err != nil {
		e.logger.Error("persist run", "run_id", state.Run.ID, "error", err)
	}
}
