package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
)

// FlowRegistry — реестр определений flow.
//
// Определение регистрируется один раз и после этого неизменяемо:
// Lookup возвращает тот же объект, что был передан в Register.
// Повторная регистрация под тем же именем отклоняется.
//
// Потокобезопасен.
type FlowRegistry struct {
	mu    sync.RWMutex
	flows map[string]*domain.FlowDefinition
}

// NewFlowRegistry создаёт пустой реестр определений.
func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{
		flows: make(map[string]*domain.FlowDefinition),
	}
}

// Register валидирует и регистрирует определение.
//
// Возвращает ErrDuplicateFlow, если имя уже занято, или ошибку
// валидации, если граф некорректен. Отклонённое определение не
// попадает в реестр.
func (r *FlowRegistry) Register(def *domain.FlowDefinition) error {
	if err := engine.Validate(def); err != nil {
		return fmt.Errorf("validate flow: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.flows[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFlow, def.Name)
	}

	r.flows[def.Name] = def
	return nil
}

// Lookup возвращает определение по имени.
func (r *FlowRegistry) Lookup(name string) (*domain.FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.flows[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, name)
	}

	return def, nil
}

// Names возвращает имена зарегистрированных определений
// в алфавитном порядке.
func (r *FlowRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.flows))
	for name := range r.flows {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Size возвращает число зарегистрированных определений.
func (r *FlowRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.flows)
}
