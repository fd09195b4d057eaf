// Package idgen выдаёт идентификаторы комнат/сообщений и монотонные метки времени.
package idgen

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewID возвращает новый глобально уникальный идентификатор (UUID v4).
func NewID() string {
	return uuid.New().String()
}

// Clock выдаёт строго возрастающие метки времени в UTC: два вызова Now никогда
// не вернут одинаковое значение, даже если системные часы не сдвинулись или ушли назад.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock создаёт часы поверх time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockFrom создаёт часы с заданным источником времени (для тестов).
func NewClockFrom(now func() time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
