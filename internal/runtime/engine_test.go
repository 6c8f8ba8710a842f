package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/executor"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// testEngine собирает движок с прикладными обработчиками для тестов.
func testEngine(t *testing.T, handlers *registry.HandlerRegistry) *Engine {
	t.Helper()

	execs := executor.NewRegistry()
	execs.Register(executor.NewTaskExecutor(handlers, testLogger()))
	execs.Register(executor.NewSignalExecutor(testLogger()))
	execs.Register(executor.NewTimerExecutor(testLogger()))

	return New(Config{
		Flows:     registry.NewFlowRegistry(),
		Executors: execs,
		Logger:    testLogger(),
	})
}

// waitForStatus ждёт, пока run достигнет статуса, с таймаутом.
func waitForStatus(t *testing.T, e *Engine, runID uuid.UUID, want domain.RunStatus) *domain.Run {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := e.GetRun(runID)
		if err != nil {
			t.Fatalf("get run: %v", err)
		}
		if run.Status == want {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}

	run, _ := e.GetRun(runID)
	t.Fatalf("run did not reach %s, stuck at %s", want, run.Status)
	return nil
}

func TestEngine_LinearFlowSucceeds(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	var order []string
	var mu sync.Mutex
	handlers.Register("svc", "record", func(_ context.Context, inv registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		mu.Lock()
		order = append(order, inv.StepName)
		mu.Unlock()
		return map[string]any{"done": true}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "linear",
		Steps: []domain.Step{
			domain.TaskStep("a", "svc", "record", nil),
			domain.TaskStep("b", "svc", "record", nil, "a"),
			domain.TaskStep("c", "svc", "record", nil, "b"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "linear", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	final := waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("expected a,b,c execution order, got %v", order)
	}
	for _, name := range []string{"a", "b", "c"} {
		if final.StepStates[name].Status != domain.StepStatusSucceeded {
			t.Errorf("step %s: expected SUCCEEDED, got %s", name, final.StepStates[name].Status)
		}
	}
	if final.FinishedAt == nil {
		t.Error("finished run must have FinishedAt")
	}
}

func TestEngine_IndependentStepsRunInParallel(t *testing.T) {
	handlers := registry.NewHandlerRegistry()

	// Оба шага должны войти в обработчик до того, как любой выйдет
	var entered sync.WaitGroup
	entered.Add(2)
	handlers.Register("svc", "sync", func(ctx context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		entered.Done()
		done := make(chan struct{})
		go func() { entered.Wait(); close(done) }()
		select {
		case <-done:
			return map[string]any{}, nil
		case <-time.After(3 * time.Second):
			return nil, errors.New("peer step never started")
		}
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "fanout",
		Steps: []domain.Step{
			domain.TaskStep("left", "svc", "sync", nil),
			domain.TaskStep("right", "svc", "sync", nil),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "fanout", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()
}

func TestEngine_TemplatesResolveParamsAndOutputs(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	handlers.Register("svc", "produce", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		return map[string]any{"token": "xyz"}, nil
	})
	var got map[string]any
	handlers.Register("svc", "consume", func(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
		got = input
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "templated",
		Steps: []domain.Step{
			domain.TaskStep("produce", "svc", "produce", nil),
			domain.TaskStep("consume", "svc", "consume", map[string]any{
				"token": "{{produce.token}}",
				"id":    "{{task_id}}",
				"label": "task {{task_id}}",
			}, "produce"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "templated", map[string]any{"task_id": "t-9"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()

	if got["token"] != "xyz" {
		t.Errorf("expected output binding xyz, got %v", got["token"])
	}
	if got["id"] != "t-9" {
		t.Errorf("expected param binding t-9, got %v", got["id"])
	}
	if got["label"] != "task t-9" {
		t.Errorf("expected embedded substitution, got %v", got["label"])
	}
}

func TestEngine_UnresolvedTemplateFailsStep(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	handlers.Register("svc", "noop", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "broken",
		Steps: []domain.Step{
			domain.TaskStep("a", "svc", "noop", map[string]any{"x": "{{missing}}"}),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "broken", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	final := waitForStatus(t, e, run.ID, domain.RunStatusFailed)
	e.Wait()

	if final.StepStates["a"].Status != domain.StepStatusFailed {
		t.Errorf("expected step a FAILED, got %s", final.StepStates["a"].Status)
	}
}

func TestEngine_FailurePropagatesToTransitiveDependents(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	var bCalls, cCalls atomic.Int32
	handlers.Register("svc", "boom", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	handlers.Register("svc", "countB", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		bCalls.Add(1)
		return map[string]any{}, nil
	})
	handlers.Register("svc", "countC", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		cCalls.Add(1)
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "chainfail",
		Steps: []domain.Step{
			domain.TaskStep("a", "svc", "boom", nil),
			domain.TaskStep("b", "svc", "countB", nil, "a"),
			domain.TaskStep("c", "svc", "countC", nil, "b"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "chainfail", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	final := waitForStatus(t, e, run.ID, domain.RunStatusFailed)
	e.Wait()

	if bCalls.Load() != 0 || cCalls.Load() != 0 {
		t.Errorf("dependents must not run after upstream failure: b=%d c=%d", bCalls.Load(), cCalls.Load())
	}
	for _, name := range []string{"b", "c"} {
		st := final.StepStates[name]
		if st.Status != domain.StepStatusFailed {
			t.Errorf("step %s: expected FAILED, got %s", name, st.Status)
		}
		if st.Error == "" {
			t.Errorf("step %s: expected upstream failure cause", name)
		}
	}
	if final.StepStates["b"].Error != "upstream failure: a" {
		t.Errorf("step b: unexpected cause %q", final.StepStates["b"].Error)
	}
	if final.StepStates["c"].Error != "upstream failure: b" {
		t.Errorf("step c: unexpected cause %q", final.StepStates["c"].Error)
	}
}

func TestEngine_IndependentBranchContinuesAfterFailure(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	handlers.Register("svc", "boom", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	handlers.Register("svc", "ok", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "branches",
		Steps: []domain.Step{
			domain.TaskStep("bad", "svc", "boom", nil),
			domain.TaskStep("good", "svc", "ok", nil),
			domain.TaskStep("after_good", "svc", "ok", nil, "good"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "branches", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	final := waitForStatus(t, e, run.ID, domain.RunStatusFailed)
	e.Wait()

	if final.StepStates["good"].Status != domain.StepStatusSucceeded {
		t.Errorf("independent branch must complete, got %s", final.StepStates["good"].Status)
	}
	if final.StepStates["after_good"].Status != domain.StepStatusSucceeded {
		t.Errorf("independent dependent must complete, got %s", final.StepStates["after_good"].Status)
	}
}

func TestEngine_SignalSuspendAndResume(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	var got map[string]any
	handlers.Register("svc", "after", func(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
		got = input
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "gated",
		Steps: []domain.Step{
			domain.WaitSignalStep("gate", "approved"),
			domain.TaskStep("after", "svc", "after", map[string]any{
				"who": "{{gate.approver}}",
			}, "gate"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "gated", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	suspended := waitForStatus(t, e, run.ID, domain.RunStatusSuspended)
	if suspended.StepStates["gate"].Status != domain.StepStatusSuspended {
		t.Fatalf("expected gate SUSPENDED, got %s", suspended.StepStates["gate"].Status)
	}
	if suspended.StepStates["gate"].SuspendToken == "" {
		t.Error("suspended step must carry a token")
	}

	if err := e.DeliverSignal(context.Background(), run.ID, "approved", map[string]any{"approver": "ops"}); err != nil {
		t.Fatalf("deliver signal: %v", err)
	}

	final := waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()

	if got["who"] != "ops" {
		t.Errorf("signal payload must be visible to templates, got %v", got["who"])
	}
	if final.StepStates["gate"].Output["approver"] != "ops" {
		t.Errorf("signal payload must become the wait step output, got %v", final.StepStates["gate"].Output)
	}
}

func TestEngine_DuplicateSignalIsNoop(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	var calls atomic.Int32
	handlers.Register("svc", "after", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "gated",
		Steps: []domain.Step{
			domain.WaitSignalStep("gate", "go"),
			domain.TaskStep("after", "svc", "after", nil, "gate"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "gated", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, e, run.ID, domain.RunStatusSuspended)

	for i := 0; i < 3; i++ {
		if err := e.DeliverSignal(context.Background(), run.ID, "go", nil); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}

	waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()

	if calls.Load() != 1 {
		t.Errorf("downstream step must run exactly once, got %d", calls.Load())
	}
}

func TestEngine_TimerSuspendAndFire(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	var calls atomic.Int32
	handlers.Register("svc", "after", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "delayed",
		Steps: []domain.Step{
			domain.WaitTimerStep("pause", "cooldown", 60_000),
			domain.TaskStep("after", "svc", "after", nil, "pause"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "delayed", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, e, run.ID, domain.RunStatusSuspended)

	// Доставка среды, не реального времени: движку всё равно, кто стреляет
	if err := e.DeliverTimer(context.Background(), run.ID, "cooldown"); err != nil {
		t.Fatalf("deliver timer: %v", err)
	}
	// Дубликат — no-op
	if err := e.DeliverTimer(context.Background(), run.ID, "cooldown"); err != nil {
		t.Fatalf("duplicate deliver: %v", err)
	}

	waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()

	if calls.Load() != 1 {
		t.Errorf("downstream step must run exactly once, got %d", calls.Load())
	}
}

func TestEngine_SignalForUnknownRun(t *testing.T) {
	e := testEngine(t, registry.NewHandlerRegistry())

	err := e.DeliverSignal(context.Background(), uuid.New(), "sig", nil)
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestEngine_SignalRunNotWaiting(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	block := make(chan struct{})
	handlers.Register("svc", "block", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		<-block
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name:  "busy",
		Steps: []domain.Step{domain.TaskStep("work", "svc", "block", nil)},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "busy", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Run выполняется, сигналов не ждёт — доставка поглощается
	if err := e.DeliverSignal(context.Background(), run.ID, "anything", nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	close(block)
	waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()
}

func TestEngine_CancelSuspendedRun(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	var calls atomic.Int32
	handlers.Register("svc", "after", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "gated",
		Steps: []domain.Step{
			domain.WaitSignalStep("gate", "never"),
			domain.TaskStep("after", "svc", "after", nil, "gate"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "gated", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, e, run.ID, domain.RunStatusSuspended)

	if err := e.CancelRun(context.Background(), run.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	final := waitForStatus(t, e, run.ID, domain.RunStatusCancelled)
	e.Wait()

	if final.StepStates["gate"].Status != domain.StepStatusCancelled {
		t.Errorf("expected gate CANCELLED, got %s", final.StepStates["gate"].Status)
	}
	if final.StepStates["after"].Status != domain.StepStatusCancelled {
		t.Errorf("expected after CANCELLED, got %s", final.StepStates["after"].Status)
	}
	if calls.Load() != 0 {
		t.Errorf("cancelled steps must not invoke handlers, got %d calls", calls.Load())
	}

	// Сигнал после отмены поглощается
	if err := e.DeliverSignal(context.Background(), run.ID, "never", nil); err != nil {
		t.Errorf("post-cancel signal must be a no-op, got %v", err)
	}
}

func TestEngine_CancelFinishedRun(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	handlers.Register("svc", "ok", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name:  "quick",
		Steps: []domain.Step{domain.TaskStep("a", "svc", "ok", nil)},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "quick", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()

	if err := e.CancelRun(context.Background(), run.ID); !errors.Is(err, ErrRunFinished) {
		t.Errorf("expected ErrRunFinished, got %v", err)
	}
}

func TestEngine_TerminalRunRemainsQueryable(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	handlers.Register("svc", "ok", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		return map[string]any{"n": 1}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name:  "quick",
		Steps: []domain.Step{domain.TaskStep("a", "svc", "ok", nil)},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "quick", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()

	got, err := e.GetRun(run.ID)
	if err != nil {
		t.Fatalf("terminal run must stay queryable: %v", err)
	}
	if got.StepStates["a"].Output["n"] != 1 {
		t.Errorf("expected preserved output, got %v", got.StepStates["a"].Output)
	}
}

func TestEngine_GetRunUnknown(t *testing.T) {
	e := testEngine(t, registry.NewHandlerRegistry())

	_, err := e.GetRun(uuid.New())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestEngine_StartUnknownFlow(t *testing.T) {
	e := testEngine(t, registry.NewHandlerRegistry())

	_, err := e.StartFlow(context.Background(), "ghost", nil)
	if !errors.Is(err, registry.ErrFlowNotFound) {
		t.Errorf("expected ErrFlowNotFound, got %v", err)
	}
}

func TestEngine_ConcurrentRunsAreIsolated(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	handlers.Register("svc", "echo", func(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
		return map[string]any{"seen": input["v"]}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "echo",
		Steps: []domain.Step{
			domain.TaskStep("a", "svc", "echo", map[string]any{"v": "{{v}}"}),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	const n = 20
	ids := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		run, err := e.StartFlow(context.Background(), "echo", map[string]any{"v": i})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		ids[i] = run.ID
	}

	for i, id := range ids {
		final := waitForStatus(t, e, id, domain.RunStatusSucceeded)
		if final.StepStates["a"].Output["seen"] != i {
			t.Errorf("run %d: expected isolated param %d, got %v", i, i, final.StepStates["a"].Output["seen"])
		}
	}
	e.Wait()
}

// Сценарий: валидация, затем обработка с шаблонами из параметров
// и output первого шага.
func TestEngine_SequenceScenario(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	handlers.Register("worker", "validate_input", func(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
		return map[string]any{"valid": true, "id": input["id"]}, nil
	})
	var processed map[string]any
	handlers.Register("worker", "process_task", func(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
		processed = input
		return map[string]any{"status": "completed"}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "simple_sequence",
		Steps: []domain.Step{
			domain.TaskStep("validate", "worker", "validate_input", map[string]any{
				"id": "{{task_id}}",
			}),
			domain.TaskStep("process", "worker", "process_task", map[string]any{
				"task_id": "{{validate.id}}",
				"type":    "{{type}}",
			}, "validate"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "simple_sequence", map[string]any{
		"task_id": "t-1",
		"type":    "report",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()

	if processed["task_id"] != "t-1" {
		t.Errorf("expected task_id from validate output, got %v", processed["task_id"])
	}
	if processed["type"] != "report" {
		t.Errorf("expected type from trigger params, got %v", processed["type"])
	}
}

// Сценарий: сигнал открывает расчёт, за которым следует таймер.
func TestEngine_SignalThenTimerScenario(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	var metric map[string]any
	handlers.Register("worker", "calculate_metrics", func(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
		points := input["data_points"].([]any)
		sum := 0.0
		for _, p := range points {
			sum += p.(float64)
		}
		metric = map[string]any{"value": sum / float64(len(points))}
		return metric, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "metrics_with_signal",
		Steps: []domain.Step{
			domain.WaitSignalStep("await_ready", "metrics_ready"),
			domain.TaskStep("calculate", "worker", "calculate_metrics", map[string]any{
				"data_points": []any{1.0, 2.0, 3.0, 4.0, 5.0},
				"metric_type": "average",
			}, "await_ready"),
			domain.WaitTimerStep("cooldown", "metrics_cooldown", 2000, "calculate"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := e.StartFlow(context.Background(), "metrics_with_signal", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForStatus(t, e, run.ID, domain.RunStatusSuspended)
	if err := e.DeliverSignal(context.Background(), run.ID, "metrics_ready", nil); err != nil {
		t.Fatalf("deliver signal: %v", err)
	}

	// После расчёта run снова приостановлен — теперь на таймере
	waitForStatus(t, e, run.ID, domain.RunStatusSuspended)
	snapshot, _ := e.GetRun(run.ID)
	if snapshot.StepStates["cooldown"].Status != domain.StepStatusSuspended {
		t.Fatalf("expected cooldown SUSPENDED, got %s", snapshot.StepStates["cooldown"].Status)
	}

	if err := e.DeliverTimer(context.Background(), run.ID, "metrics_cooldown"); err != nil {
		t.Fatalf("deliver timer: %v", err)
	}

	waitForStatus(t, e, run.ID, domain.RunStatusSucceeded)
	e.Wait()

	if metric["value"] != 3.0 {
		t.Errorf("expected average 3.0, got %v", metric["value"])
	}
}

type staticLister struct {
	runs []*domain.Run
}

func (l *staticLister) ListActive(_ context.Context) ([]*domain.Run, error) {
	return l.runs, nil
}

func TestEngine_RestoreResumesSuspendedRun(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	var called atomic.Int32
	handlers.Register("svc", "after", func(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
		called.Add(1)
		return map[string]any{"got": input["v"]}, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "gated",
		Steps: []domain.Step{
			domain.WaitSignalStep("gate", "approve"),
			domain.TaskStep("after", "svc", "after", map[string]any{"v": "{{gate.answer}}"}, "gate"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Снапшот run, приостановленного на wait_signal до рестарта
	persisted := domain.NewRun(def, nil)
	persisted.Status = domain.RunStatusSuspended
	persisted.StepStates["gate"].MarkRunning()
	persisted.StepStates["gate"].MarkSuspended(uuid.NewString())

	restored, err := e.Restore(context.Background(), &staticLister{runs: []*domain.Run{persisted}})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored != 1 {
		t.Fatalf("expected 1 restored run, got %d", restored)
	}

	snapshot := waitForStatus(t, e, persisted.ID, domain.RunStatusSuspended)
	if snapshot.StepStates["gate"].Status != domain.StepStatusSuspended {
		t.Fatalf("expected gate SUSPENDED after restore, got %s", snapshot.StepStates["gate"].Status)
	}

	// Ожидание переиндексировано: сигнал доигрывает run до конца
	if err := e.DeliverSignal(context.Background(), persisted.ID, "approve", map[string]any{"answer": "yes"}); err != nil {
		t.Fatalf("deliver signal: %v", err)
	}

	final := waitForStatus(t, e, persisted.ID, domain.RunStatusSucceeded)
	e.Wait()

	if called.Load() != 1 {
		t.Errorf("expected downstream handler to run once, ran %d times", called.Load())
	}
	if final.StepStates["after"].Output["got"] != "yes" {
		t.Errorf("expected resumed payload in template, got %v", final.StepStates["after"].Output)
	}
}

func TestEngine_RestoreRerunsInterruptedStep(t *testing.T) {
	handlers := registry.NewHandlerRegistry()
	var called atomic.Int32
	handlers.Register("svc", "work", func(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
		called.Add(1)
		return nil, nil
	})

	e := testEngine(t, handlers)
	def := &domain.FlowDefinition{
		Name: "twostep",
		Steps: []domain.Step{
			domain.TaskStep("a", "svc", "work", nil),
			domain.TaskStep("b", "svc", "work", nil, "a"),
		},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Run упал посреди шага b: a завершён, b застигнут в RUNNING
	persisted := domain.NewRun(def, nil)
	persisted.StepStates["a"].MarkRunning()
	persisted.StepStates["a"].MarkSucceeded(map[string]any{"ok": true})
	persisted.StepStates["b"].MarkRunning()

	if _, err := e.Restore(context.Background(), &staticLister{runs: []*domain.Run{persisted}}); err != nil {
		t.Fatalf("restore: %v", err)
	}

	waitForStatus(t, e, persisted.ID, domain.RunStatusSucceeded)
	e.Wait()

	// Шаг a не перезапускается, шаг b выполняется заново
	if called.Load() != 1 {
		t.Errorf("expected exactly one handler call, got %d", called.Load())
	}
}

func TestEngine_RestoreSkipsUnknownFlow(t *testing.T) {
	e := testEngine(t, registry.NewHandlerRegistry())

	orphan := &domain.Run{
		ID:         uuid.New(),
		FlowName:   "ghost",
		Status:     domain.RunStatusRunning,
		StepStates: map[string]*domain.StepState{},
	}

	restored, err := e.Restore(context.Background(), &staticLister{runs: []*domain.Run{orphan}})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored != 0 {
		t.Errorf("expected 0 restored runs, got %d", restored)
	}
	if _, err := e.GetRun(orphan.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("orphan run must not be adopted, got err=%v", err)
	}
}

func TestEngine_SuspendedStepsGaugeReleasedOnCancel(t *testing.T) {
	e := testEngine(t, registry.NewHandlerRegistry())
	def := &domain.FlowDefinition{
		Name:  "metered",
		Steps: []domain.Step{domain.WaitSignalStep("gate", "go")},
	}
	if err := e.flows.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	before := testutil.ToFloat64(telemetry.SuspendedSteps)

	run, err := e.StartFlow(context.Background(), "metered", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, e, run.ID, domain.RunStatusSuspended)
	e.Wait()

	if got := testutil.ToFloat64(telemetry.SuspendedSteps); got != before+1 {
		t.Errorf("expected gauge %v after suspend, got %v", before+1, got)
	}

	// Отмена финализирует run с неразрешённым ожиданием:
	// приостановка должна быть освобождена из метрики.
	if err := e.CancelRun(context.Background(), run.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if got := testutil.ToFloat64(telemetry.SuspendedSteps); got != before {
		t.Errorf("expected gauge back at %v after cancel, got %v", before, got)
	}
}
