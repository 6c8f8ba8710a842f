package worker

import (
	"fmt"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/registry"
)

// SimpleSequenceFlow — валидация входа, затем обработка задачи.
// Шаблоны validate берут параметры триггера id и type; process
// получает task_id из триггера.
func SimpleSequenceFlow() *domain.FlowDefinition {
	return &domain.FlowDefinition{
		Name: "simple_sequence",
		Steps: []domain.Step{
			domain.TaskStep("validate", ServiceName, "validate_input", map[string]any{
				"input_data": map[string]any{
					"id":   "{{id}}",
					"type": "{{type}}",
				},
			}),
			domain.TaskStep("process", ServiceName, "process_task", map[string]any{
				"task_id":   "{{task_id}}",
				"task_data": map[string]any{"source": "workflow"},
			}, "validate"),
		},
	}
}

// MetricsWithSignalFlow — расчёт метрики, открываемый внешним
// сигналом, с таймером охлаждения после расчёта.
func MetricsWithSignalFlow() *domain.FlowDefinition {
	return &domain.FlowDefinition{
		Name: "metrics_with_signal",
		Steps: []domain.Step{
			domain.WaitSignalStep("await_ready", "metrics_ready"),
			domain.TaskStep("calculate", ServiceName, "calculate_metrics", map[string]any{
				"data_points": []any{1, 2, 3, 4, 5},
				"metric_type": "average",
			}, "await_ready"),
			domain.WaitTimerStep("cooldown", "metrics_cooldown", 2000, "calculate"),
		},
	}
}

// RegisterFlows регистрирует встроенные определения flow.
func RegisterFlows(flows *registry.FlowRegistry) error {
	for _, def := range []*domain.FlowDefinition{
		SimpleSequenceFlow(),
		MetricsWithSignalFlow(),
	} {
		if err := flows.Register(def); err != nil {
			return fmt.Errorf("register flow %s: %w", def.Name, err)
		}
	}
	return nil
}
