package timers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry — запись ожидающего таймера.
type Entry struct {
	Token    uuid.UUID
	RunID    uuid.UUID
	TimerKey string
	FireAt   time.Time
}

// Store хранит ожидающие таймеры.
// Реализации: MemoryStore (in-memory) и repo.TimerRepo (Postgres).
type Store interface {
	// Put регистрирует таймер. Повторная запись того же токена
	// перезаписывает предыдущую.
	Put(ctx context.Context, entry Entry) error

	// ListDue возвращает таймеры с FireAt <= now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Entry, error)

	// Delete удаляет таймер по токену.
	Delete(ctx context.Context, token uuid.UUID) error

	// DeleteRun удаляет все таймеры run.
	DeleteRun(ctx context.Context, runID uuid.UUID) error
}

// MemoryStore — in-memory хранилище таймеров.
// Используется в standalone-режиме и в тестах.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Entry
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[uuid.UUID]Entry),
	}
}

func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Token] = entry
	return nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Entry
	for _, entry := range s.entries {
		if !entry.FireAt.After(now) {
			due = append(due, entry)
			if limit > 0 && len(due) >= limit {
				break
			}
		}
	}
	return due, nil
}

func (s *MemoryStore) Delete(_ context.Context, token uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, token)
	return nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, runID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, entry := range s.entries {
		if entry.RunID == runID {
			delete(s.entries, token)
		}
	}
	return nil
}

// Size возвращает число ожидающих таймеров.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
