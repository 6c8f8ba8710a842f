// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go      — Handler с DI (движок, реестр flows, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — middleware (logging, recovery)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — Data Transfer Objects (request/response)
//   - flow_handler.go — обработчики для /flows
//   - run_handler.go  — обработчики для /runs и /signals
//
// API предоставляет REST endpoints для запуска flows, запроса и
// отмены runs и доставки сигналов.
package api
