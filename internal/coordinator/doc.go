// Package coordinator предоставляет инфраструктуру RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect и graceful shutdown
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация команд и событий
//   - consumer.go   — потребление очередей
//
// Типы сообщений:
//   - flow.start     — команда запуска flow
//   - run.cancel     — команда отмены run
//   - event.signal   — доставка именованного сигнала
//   - event.timer    — срабатывание durable-таймера
//   - run.completed  — уведомление о терминальном run
//   - worker.hello   — объявление воркера и его обработчиков
//
// Доставка at-least-once: обработчики событий идемпотентны,
// дубликаты поглощаются движком.
package coordinator
