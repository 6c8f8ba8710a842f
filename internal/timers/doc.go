// Package timers реализует durable-таймеры wait_timer шагов.
//
// Service периодически обходит хранилище ожидающих таймеров и
// доставляет due-срабатывания в движок. Хранилище подключается через
// Store: in-memory для standalone-режима, Postgres для переживания
// рестартов.
package timers
