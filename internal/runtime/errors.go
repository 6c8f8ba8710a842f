package runtime

import "errors"

// Ошибки движка.
var (
	// ErrRunNotFound — run с таким идентификатором не существует.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished — run уже в терминальном статусе.
	ErrRunFinished = errors.New("run already finished")

	// ErrStepNotWaiting — шаг не ожидает такое событие.
	// Повторные и устаревшие доставки не являются ошибкой и
	// поглощаются до этого уровня; ErrStepNotWaiting остаётся
	// для внутренних проверок RunState.
	ErrStepNotWaiting = errors.New("step is not waiting")
)
