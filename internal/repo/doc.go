// Package repo содержит Postgres-репозитории.
//
// RunRepo хранит снапшоты runs (jsonb), TimerRepo — durable-таймеры.
// Оба опциональны: без пула движок работает полностью в памяти.
package repo
