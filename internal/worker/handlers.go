package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shaiso/Relay/internal/registry"
)

// ServiceName — имя сервиса, под которым регистрируются встроенные
// обработчики.
const ServiceName = "worker"

// RegisterBuiltins регистрирует встроенные обработчики.
func RegisterBuiltins(handlers *registry.HandlerRegistry) {
	handlers.Register(ServiceName, "process_task", ProcessTask)
	handlers.Register(ServiceName, "validate_input", ValidateInput)
	handlers.Register(ServiceName, "calculate_metrics", CalculateMetrics)
	handlers.Register(ServiceName, "health_check", HealthCheck)
}

// ProcessTask обрабатывает задачу: принимает task_id и произвольный
// task_data, возвращает результат обработки.
func ProcessTask(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
	taskID, _ := input["task_id"].(string)
	taskData, _ := input["task_data"].(map[string]any)

	return map[string]any{
		"task_id":       taskID,
		"original_data": taskData,
		"status":        "completed",
		"processed_at":  time.Now().UTC().Format(time.RFC3339),
		"message":       fmt.Sprintf("Successfully processed task %s", taskID),
	}, nil
}

// ValidateInput проверяет input_data по списку правил.
//
// Правила (default: required_fields, data_types):
//   - required_fields: поля id и type обязательны
//   - data_types: id должен быть строкой; нестроковый value — warning
//
// Нарушения не являются ошибкой обработчика: результат несёт
// valid=false и перечень ошибок.
func ValidateInput(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
	data, _ := input["input_data"].(map[string]any)
	if data == nil {
		data = make(map[string]any)
	}

	rules := []string{"required_fields", "data_types"}
	if raw, ok := input["rules"].([]any); ok {
		rules = rules[:0]
		for _, r := range raw {
			if name, ok := r.(string); ok {
				rules = append(rules, name)
			}
		}
	}

	errs := []any{}
	warnings := []any{}

	for _, rule := range rules {
		switch rule {
		case "required_fields":
			for _, field := range []string{"id", "type"} {
				if _, ok := data[field]; !ok {
					errs = append(errs, fmt.Sprintf("Missing required field: %s", field))
				}
			}

		case "data_types":
			if id, ok := data["id"]; ok {
				if _, isString := id.(string); !isString {
					errs = append(errs, "Field 'id' must be a string")
				}
			}
			if value, ok := data["value"]; ok {
				switch value.(type) {
				case float64, int, int64:
				default:
					warnings = append(warnings, "Field 'value' should be numeric")
				}
			}
		}
	}

	return map[string]any{
		"valid":         len(errs) == 0,
		"errors":        errs,
		"warnings":      warnings,
		"input_data":    data,
		"rules_applied": rules,
	}, nil
}

// CalculateMetrics считает метрику по набору точек.
// Поддерживаемые metric_type: average (default), sum, min, max.
//
// Ошибки данных (пустой набор, нечисловая точка, неизвестный тип
// метрики) возвращаются в результате с result=nil, а не как ошибка
// обработчика; структурно неверный вход — ошибка обработчика.
func CalculateMetrics(_ context.Context, _ registry.InvocationContext, input map[string]any) (map[string]any, error) {
	raw, ok := input["data_points"].([]any)
	if !ok {
		return nil, fmt.Errorf("data_points must be a list")
	}

	metricType, ok := input["metric_type"].(string)
	if !ok || metricType == "" {
		metricType = "average"
	}

	if len(raw) == 0 {
		return map[string]any{
			"metric_type": metricType,
			"result":      nil,
			"error":       "No data points provided",
		}, nil
	}

	points, err := numericPoints(raw)
	if err != nil {
		return map[string]any{
			"metric_type": metricType,
			"result":      nil,
			"error":       fmt.Sprintf("Invalid data: %v", err),
		}, nil
	}

	var result float64
	switch metricType {
	case "average":
		for _, p := range points {
			result += p
		}
		result /= float64(len(points))

	case "sum":
		for _, p := range points {
			result += p
		}

	case "min":
		result = points[0]
		for _, p := range points[1:] {
			if p < result {
				result = p
			}
		}

	case "max":
		result = points[0]
		for _, p := range points[1:] {
			if p > result {
				result = p
			}
		}

	default:
		return map[string]any{
			"metric_type": metricType,
			"result":      nil,
			"error":       fmt.Sprintf("Unknown metric type: %s", metricType),
		}, nil
	}

	return map[string]any{
		"metric_type":       metricType,
		"result":            result,
		"data_points_count": len(points),
		"input_data":        raw,
	}, nil
}

// HealthCheck возвращает состояние сервиса.
func HealthCheck(_ context.Context, _ registry.InvocationContext, _ map[string]any) (map[string]any, error) {
	return map[string]any{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"message":   "Service is running normally",
	}, nil
}

// numericPoints приводит data_points к []float64.
// JSON-числа приходят как float64; int принимается для данных,
// заданных в коде, числовые строки вроде "1.5" приводятся к числу.
func numericPoints(items []any) ([]float64, error) {
	points := make([]float64, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case float64:
			points = append(points, v)
		case int:
			points = append(points, float64(v))
		case int64:
			points = append(points, float64(v))
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("data_points[%d] is not a number", i)
			}
			points = append(points, f)
		default:
			return nil, fmt.Errorf("data_points[%d] is not a number", i)
		}
	}
	return points, nil
}
