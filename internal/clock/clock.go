// Пакет clock — источник времени, подменяемый в тестах.
// Блокировки, даты публикации и даты обработки берут время отсюда,
// чтобы сценарии с истечением TTL проверялись без реального ожидания.
package clock

import (
	"sync"
	"time"
)

// Clock — источник текущего времени.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real возвращает системные часы.
func Real() Clock {
	return realClock{}
}

// FakeClock — управляемые вручную часы.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Fake создаёт часы, остановленные на моменте start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now возвращает текущее значение часов.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы вперёд на d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set устанавливает часы на момент t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// OrReal возвращает c или системные часы, если c == nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real()
	}
	return c
}
