package executor

import "errors"

// Ошибки исполнения шагов.
var (
	// ErrUnknownStepType — для типа шага нет зарегистрированного
	// исполнителя.
	ErrUnknownStepType = errors.New("no executor for step type")

	// ErrHandlerFailed — прикладной обработчик вернул ошибку.
	ErrHandlerFailed = errors.New("handler failed")
)

// HandlerFailure — ошибка прикладного обработчика task-шага.
// Сохраняет исходный вход шага для диагностики.
type HandlerFailure struct {
	Service string
	Handler string
	Input   map[string]any
	Err     error
}

func (e *HandlerFailure) Error() string {
	return "handler " + e.Service + "/" + e.Handler + " failed: " + e.Err.Error()
}

// Unwrap отдаёт и сентинел, и исходную ошибку обработчика:
// errors.Is/As видят обе цепочки.
func (e *HandlerFailure) Unwrap() []error {
	return []error{ErrHandlerFailed, e.Err}
}
