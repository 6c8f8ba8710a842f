package registry

import "errors"

// Ошибки реестров.
var (
	// ErrDuplicateFlow — определение с таким именем уже зарегистрировано.
	ErrDuplicateFlow = errors.New("flow already registered")

	// ErrFlowNotFound — определение с таким именем не зарегистрировано.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrHandlerNotFound — обработчик не зарегистрирован для пары
	// (service, handler).
	ErrHandlerNotFound = errors.New("handler not found")
)
