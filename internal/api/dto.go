package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/domain"
)

// Flow DTOs

// FlowResponse — ответ с определением flow.
type FlowResponse struct {
	Name  string         `json:"name"`
	Steps []StepResponse `json:"steps"`
}

// StepResponse — шаг определения.
type StepResponse struct {
	Name        string          `json:"name"`
	Type        domain.StepType `json:"type"`
	DependsOn   []string        `json:"depends_on,omitempty"`
	ServiceName string          `json:"service_name,omitempty"`
	HandlerName string          `json:"handler_name,omitempty"`
	InputData   map[string]any  `json:"input_data,omitempty"`
	SignalName  string          `json:"signal_name,omitempty"`
	TimerKey    string          `json:"timer_key,omitempty"`
	DelayMs     int64           `json:"delay_ms,omitempty"`
}

// FlowFromDomain конвертирует domain.FlowDefinition в FlowResponse.
func FlowFromDomain(def *domain.FlowDefinition) FlowResponse {
	steps := make([]StepResponse, len(def.Steps))
	for i := range def.Steps {
		s := &def.Steps[i]
		steps[i] = StepResponse{
			Name:        s.Name,
			Type:        s.Type,
			DependsOn:   s.DependsOn,
			ServiceName: s.ServiceName,
			HandlerName: s.HandlerName,
			InputData:   s.InputData,
			SignalName:  s.SignalName,
			TimerKey:    s.TimerKey,
			DelayMs:     s.DelayMs,
		}
	}
	return FlowResponse{Name: def.Name, Steps: steps}
}

// Run DTOs

// StartRunRequest — запрос на запуск run.
type StartRunRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

// SignalRequest — запрос на доставку сигнала.
type SignalRequest struct {
	RunID   uuid.UUID      `json:"run_id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID                    `json:"id"`
	FlowName   string                       `json:"flow_name"`
	Status     domain.RunStatus             `json:"status"`
	Params     map[string]any               `json:"params,omitempty"`
	StepStates map[string]StepStateResponse `json:"step_states"`
	Error      string                       `json:"error,omitempty"`
	StartedAt  time.Time                    `json:"started_at"`
	FinishedAt *time.Time                   `json:"finished_at,omitempty"`
}

// StepStateResponse — состояние шага.
type StepStateResponse struct {
	Status     domain.StepStatus `json:"status"`
	Output     map[string]any    `json:"output,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(run *domain.Run) RunResponse {
	states := make(map[string]StepStateResponse, len(run.StepStates))
	for name, st := range run.StepStates {
		states[name] = StepStateResponse{
			Status:     st.Status,
			Output:     st.Output,
			Error:      st.Error,
			StartedAt:  st.StartedAt,
			FinishedAt: st.FinishedAt,
		}
	}

	return RunResponse{
		ID:         run.ID,
		FlowName:   run.FlowName,
		Status:     run.Status,
		Params:     run.Params,
		StepStates: states,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}
