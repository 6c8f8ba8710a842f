// Package executor содержит исполнителей шагов.
//
// Каждый тип шага исполняет свой Executor: TaskExecutor вызывает
// прикладной обработчик, SignalExecutor и TimerExecutor возвращают
// Suspension без выполнения работы. Registry разрешает исполнитель
// по типу шага.
package executor
