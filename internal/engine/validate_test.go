package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Relay/internal/domain"
)

func TestValidate_ValidFlow(t *testing.T) {
	def := &domain.FlowDefinition{
		Name: "ok",
		Steps: []domain.Step{
			domain.TaskStep("fetch", "svc", "fetch_data", nil),
			domain.WaitSignalStep("gate", "approved", "fetch"),
			domain.WaitTimerStep("cooldown", "cool", 1000, "gate"),
			domain.TaskStep("finish", "svc", "report", nil, "cooldown"),
		},
	}

	if err := Validate(def); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_EmptyName(t *testing.T) {
	def := &domain.FlowDefinition{
		Steps: []domain.Step{domain.TaskStep("a", "svc", "h", nil)},
	}
	if err := Validate(def); !errors.Is(err, ErrEmptyFlowName) {
		t.Errorf("expected ErrEmptyFlowName, got %v", err)
	}

	if err := Validate(nil); !errors.Is(err, ErrEmptyFlowName) {
		t.Errorf("expected ErrEmptyFlowName for nil, got %v", err)
	}
}

func TestValidate_EmptySteps(t *testing.T) {
	def := &domain.FlowDefinition{Name: "empty"}
	if err := Validate(def); !errors.Is(err, ErrEmptySteps) {
		t.Errorf("expected ErrEmptySteps, got %v", err)
	}
}

func TestValidate_DuplicateStepName(t *testing.T) {
	def := &domain.FlowDefinition{
		Name: "dup",
		Steps: []domain.Step{
			domain.TaskStep("a", "svc", "h", nil),
			domain.TaskStep("a", "svc", "h", nil),
		},
	}

	err := Validate(def)
	if !errors.Is(err, ErrDuplicateStepName) {
		t.Fatalf("expected ErrDuplicateStepName, got %v", err)
	}

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.StepName != "a" {
		t.Errorf("expected ValidationError for step a, got %v", err)
	}
}

func TestValidate_SelfDependency(t *testing.T) {
	def := &domain.FlowDefinition{
		Name: "selfdep",
		Steps: []domain.Step{
			domain.TaskStep("a", "svc", "h", nil, "a"),
		},
	}
	if err := Validate(def); !errors.Is(err, ErrSelfDependency) {
		t.Errorf("expected ErrSelfDependency, got %v", err)
	}
}

func TestValidate_VariantFields(t *testing.T) {
	tests := []struct {
		name string
		step domain.Step
		want error
	}{
		{"task without handler", domain.TaskStep("a", "svc", "", nil), ErrMissingHandler},
		{"task without service", domain.TaskStep("a", "", "h", nil), ErrMissingHandler},
		{"signal without name", domain.WaitSignalStep("a", ""), ErrMissingSignalName},
		{"timer without key", domain.WaitTimerStep("a", "", 100), ErrMissingTimerKey},
		{"timer negative delay", domain.WaitTimerStep("a", "k", -1), ErrNegativeDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &domain.FlowDefinition{Name: "f", Steps: []domain.Step{tt.step}}
			if err := Validate(def); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_UnknownStepType(t *testing.T) {
	def := &domain.FlowDefinition{
		Name:  "badtype",
		Steps: []domain.Step{{Name: "a", Type: "compute"}},
	}
	if err := Validate(def); !errors.Is(err, ErrUnknownStepType) {
		t.Errorf("expected ErrUnknownStepType, got %v", err)
	}
}

func TestValidate_DuplicateSignalName(t *testing.T) {
	def := &domain.FlowDefinition{
		Name: "signals",
		Steps: []domain.Step{
			domain.WaitSignalStep("w1", "go"),
			domain.WaitSignalStep("w2", "go"),
		},
	}

	err := Validate(def)
	if !errors.Is(err, ErrDuplicateSignalName) {
		t.Fatalf("expected ErrDuplicateSignalName, got %v", err)
	}

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.StepName != "w2" {
		t.Errorf("expected ValidationError for step w2, got %v", err)
	}
}

func TestValidate_DuplicateTimerKey(t *testing.T) {
	def := &domain.FlowDefinition{
		Name: "timers",
		Steps: []domain.Step{
			domain.WaitTimerStep("t1", "shared", 100),
			domain.WaitTimerStep("t2", "shared", 200, "t1"),
		},
	}
	if err := Validate(def); !errors.Is(err, ErrDuplicateTimerKey) {
		t.Errorf("expected ErrDuplicateTimerKey, got %v", err)
	}
}

func TestValidate_ZeroDelayAllowed(t *testing.T) {
	def := &domain.FlowDefinition{
		Name:  "zero",
		Steps: []domain.Step{domain.WaitTimerStep("t", "k", 0)},
	}
	if err := Validate(def); err != nil {
		t.Errorf("zero delay should be valid, got %v", err)
	}
}

func TestValidate_UnknownDependency(t *testing.T) {
	def := &domain.FlowDefinition{
		Name: "ghostdep",
		Steps: []domain.Step{
			domain.TaskStep("a", "svc", "h", nil, "ghost"),
		},
	}
	if err := Validate(def); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("expected ErrMissingDependency, got %v", err)
	}
}

func TestValidate_Cycle(t *testing.T) {
	def := &domain.FlowDefinition{
		Name: "loop",
		Steps: []domain.Step{
			domain.TaskStep("a", "svc", "h", nil, "b"),
			domain.TaskStep("b", "svc", "h", nil, "a"),
		},
	}
	if err := Validate(def); !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestIsValidStepType(t *testing.T) {
	for _, st := range []domain.StepType{
		domain.StepTypeTask, domain.StepTypeWaitSignal, domain.StepTypeWaitTimer,
	} {
		if !IsValidStepType(st) {
			t.Errorf("%s should be valid", st)
		}
	}
	if IsValidStepType("compute") {
		t.Error("compute should be invalid")
	}
}
