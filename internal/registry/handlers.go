package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InvocationContext — метаданные вызова, передаваемые обработчику
// вместе с входными данными.
type InvocationContext struct {
	RunID    uuid.UUID
	FlowName string
	StepName string
}

// HandlerFunc — прикладной обработчик task-шага.
//
// Получает разрешённые входные данные шага, возвращает output mapping
// или ошибку. Ошибка обработчика помечает шаг как FAILED.
type HandlerFunc func(ctx context.Context, inv InvocationContext, input map[string]any) (map[string]any, error)

// handlerKey идентифицирует обработчик парой (сервис, имя).
type handlerKey struct {
	service string
	handler string
}

// HandlerRegistry — реестр прикладных обработчиков.
//
// Обработчики регистрируются при старте воркера и разрешаются
// по паре (service_name, handler_name) из task-шага.
//
// Потокобезопасен.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[handlerKey]HandlerFunc
}

// NewHandlerRegistry создаёт пустой реестр обработчиков.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[handlerKey]HandlerFunc),
	}
}

// Register регистрирует обработчик. Повторная регистрация
// перезаписывает предыдущий.
func (r *HandlerRegistry) Register(service, handler string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[handlerKey{service: service, handler: handler}] = fn
}

// Resolve возвращает обработчик для пары (service, handler).
func (r *HandlerRegistry) Resolve(service, handler string) (HandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, exists := r.handlers[handlerKey{service: service, handler: handler}]
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrHandlerNotFound, service, handler)
	}

	return fn, nil
}

// Invoke разрешает и вызывает обработчик.
func (r *HandlerRegistry) Invoke(ctx context.Context, service, handler string, inv InvocationContext, input map[string]any) (map[string]any, error) {
	fn, err := r.Resolve(service, handler)
	if err != nil {
		return nil, err
	}

	output, err := fn(ctx, inv, input)
	if err != nil {
		return nil, fmt.Errorf("handler %s/%s: %w", service, handler, err)
	}

	if output == nil {
		output = make(map[string]any)
	}
	return output, nil
}

// List возвращает имена обработчиков сервиса в алфавитном порядке.
// Используется при регистрации воркера у координатора.
func (r *HandlerRegistry) List(service string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for key := range r.handlers {
		if key.service == service {
			names = append(names, key.handler)
		}
	}
	sort.Strings(names)

	return names
}
