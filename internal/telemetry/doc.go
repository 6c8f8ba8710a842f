// Package telemetry настраивает логирование и метрики.
//
// Логгер — slog с уровнем и форматом из переменных окружения
// LOG_LEVEL и LOG_FORMAT. Метрики — prometheus, регистрируются
// через promauto и отдаются через promhttp в main.
package telemetry
