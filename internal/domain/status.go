package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	RUNNING ⇄ SUSPENDED
//	RUNNING → SUCCEEDED
//	RUNNING → FAILED
//	RUNNING/SUSPENDED → CANCELLED
//
// SUSPENDED не терминален: run возвращается в RUNNING, как только
// любой приостановленный шаг возобновляется.
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSuspended — прогресс заблокирован исключительно
	// внешними событиями: нет готовых шагов, но есть приостановленные.
	RunStatusSuspended RunStatus = "SUSPENDED"

	// RunStatusSucceeded — все шаги успешно завершены.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — хотя бы один шаг упал (после распространения
	// ошибки на всех зависимых).
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён явным запросом.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus — статус выполнения шага.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	                  ↘ SUSPENDED → SUCCEEDED (по сигналу/таймеру)
//	PENDING → FAILED (upstream failure, без запуска)
//	любой нетерминальный → CANCELLED (при отмене run)
//
// Готовность (ready) — вычисляемое свойство планировщика, а не
// хранимый статус: готовый шаг диспетчеризуется сразу под блокировкой
// run, так что промежуточное состояние никогда не наблюдаемо.
type StepStatus string

const (
	// StepStatusPending — шаг ждёт завершения зависимостей.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusRunning — шаг выполняется.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusSuspended — шаг ждёт внешнего сигнала или таймера.
	StepStatusSuspended StepStatus = "SUSPENDED"

	// StepStatusSucceeded — шаг успешно завершён.
	StepStatusSucceeded StepStatus = "SUCCEEDED"

	// StepStatusFailed — шаг завершился с ошибкой
	// (собственной или унаследованной от зависимости).
	StepStatusFailed StepStatus = "FAILED"

	// StepStatusCancelled — шаг отменён, обработчик не вызывался.
	StepStatusCancelled StepStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSucceeded, StepStatusFailed, StepStatusCancelled:
		return true
	default:
		return false
	}
}
