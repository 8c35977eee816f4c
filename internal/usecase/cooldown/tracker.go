// Package cooldown — in-memory дебаунс повторных алертов по паре
// (подписчик, игрок). Состояние живёт только в процессе: после рестарта
// в худшем случае уйдёт один лишний алерт.
package cooldown

import (
	"sync"
	"time"
)

// Key идентифицирует пару подписчик/игрок.
type Key struct {
	UserID     int64
	PlayerName string
}

// Tracker хранит окна подавления с ленивой чисткой.
type Tracker struct {
	mu      sync.Mutex
	entries map[Key]time.Time
}

// NewTracker создаёт пустой трекер.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[Key]time.Time)}
}

// ShouldSuppress сообщает, действует ли ещё окно подавления для ключа.
func (t *Tracker) ShouldSuppress(key Key, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expires, ok := t.entries[key]
	if !ok {
		return false
	}
	return now.Before(expires)
}

// Mark открывает окно подавления для ключа на duration от now.
func (t *Tracker) Mark(key Key, now time.Time, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = now.Add(duration)
}

// Purge удаляет истёкшие записи, ограничивая рост памяти.
func (t *Tracker) Purge(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, expires := range t.entries {
		if now.After(expires) {
			delete(t.entries, key)
		}
	}
}

// Len возвращает число активных записей.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
