package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Bindings — значения, доступные шаблонам шага.
//
// Используются в input_data шагов для подстановки:
//   - {{param_name}}      — параметр триггера
//   - {{step.field}}      — поле output успешно завершённого шага
type Bindings struct {
	// Params — параметры триггера run.
	Params map[string]any

	// Outputs — результаты успешно завершённых шагов
	// (имя шага → output mapping).
	Outputs map[string]map[string]any
}

// NewBindings создаёт Bindings с параметрами триггера.
func NewBindings(params map[string]any) *Bindings {
	if params == nil {
		params = make(map[string]any)
	}
	return &Bindings{
		Params:  params,
		Outputs: make(map[string]map[string]any),
	}
}

// AddStepOutput добавляет output завершённого шага.
func (b *Bindings) AddStepOutput(stepName string, output map[string]any) {
	if output == nil {
		output = make(map[string]any)
	}
	b.Outputs[stepName] = output
}

// Lookup возвращает значение для идентификатора шаблона.
//
// Идентификатор без точки — параметр триггера.
// Идентификатор с точкой ("step.field") — поле output шага;
// точки после первой считаются частью имени поля.
func (b *Bindings) Lookup(ident string) (any, bool) {
	if stepName, field, ok := strings.Cut(ident, "."); ok {
		output, exists := b.Outputs[stepName]
		if !exists {
			return nil, false
		}
		val, exists := output[field]
		return val, exists
	}

	val, exists := b.Params[ident]
	return val, exists
}

// placeholderRe распознаёт {{identifier}} с опциональной точечной
// навигацией: {{task_id}}, {{ validate.valid }}.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*\}\}`)

// exactPlaceholderRe распознаёт строку, целиком состоящую из одного
// плейсхолдера. Такая строка заменяется привязанным значением как
// есть, без приведения к строке — тип значения сохраняется.
var exactPlaceholderRe = regexp.MustCompile(`^\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*\}\}$`)

// Resolve разрешает шаблоны в произвольном значении.
//
// Рекурсивно обходит map и slice; строки с плейсхолдерами заменяются
// значениями из bindings, остальные значения проходят без изменений.
// Resolve — чистая функция: одинаковые аргументы дают одинаковый
// результат, входное значение не мутируется.
//
// Возвращает UnresolvedTemplateError, если идентификатор не имеет
// привязки.
func Resolve(value any, bindings *Bindings) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case string:
		return resolveString(v, bindings)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			resolved, err := Resolve(val, bindings)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			resolved, err := Resolve(val, bindings)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	case map[string]string:
		result := make(map[string]any, len(v))
		for key, val := range v {
			resolved, err := resolveString(val, bindings)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	case []string:
		result := make([]any, len(v))
		for i, val := range v {
			resolved, err := resolveString(val, bindings)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	default:
		// Числа, bool и прочие скаляры проходят как есть
		return value, nil
	}
}

// ResolveInput разрешает input_data шага.
// Обёртка над Resolve для map[string]any.
func ResolveInput(input map[string]any, bindings *Bindings) (map[string]any, error) {
	if input == nil {
		return make(map[string]any), nil
	}

	resolved, err := Resolve(input, bindings)
	if err != nil {
		return nil, err
	}

	return resolved.(map[string]any), nil
}

// resolveString разрешает плейсхолдеры в одной строке.
func resolveString(s string, bindings *Bindings) (any, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	// Строка целиком из одного плейсхолдера — значение подставляется
	// с сохранением типа ({{data_points}} может быть слайсом)
	if m := exactPlaceholderRe.FindStringSubmatch(s); m != nil {
		val, ok := bindings.Lookup(m[1])
		if !ok {
			return nil, &UnresolvedTemplateError{Identifier: m[1]}
		}
		return val, nil
	}

	// Плейсхолдеры внутри строки — подставляем текстом
	var unresolved *UnresolvedTemplateError
	result := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		ident := placeholderRe.FindStringSubmatch(match)[1]
		val, ok := bindings.Lookup(ident)
		if !ok {
			if unresolved == nil {
				unresolved = &UnresolvedTemplateError{Identifier: ident}
			}
			return match
		}
		return stringify(val)
	})

	if unresolved != nil {
		return nil, unresolved
	}
	return result, nil
}

// stringify приводит привязанное значение к строковому виду для
// подстановки внутрь большей строки.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", val)
	default:
		// Композитные значения — через JSON
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
