// Package runtime содержит ядро выполнения flow.
//
// Engine принимает триггеры, ведёт состояние runs (RunState, один
// писатель на run), запускает готовые шаги параллельно и возобновляет
// приостановленные runs при доставке сигналов и срабатывании таймеров.
//
// Персистентность и планирование таймеров подключаются через
// интерфейсы Store и TimerScheduler; без них движок полностью
// работоспособен в памяти.
package runtime
