// Package clock предоставляет источник времени и таймеры для планировщика.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer представляет отменяемый отложенный вызов.
type Timer interface {
	Stop() bool
}

// Clock отдаёт текущее время и планирует отложенные вызовы.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real использует системные часы.
type Real struct{}

// Now возвращает текущее время.
func (Real) Now() time.Time { return time.Now() }

// AfterFunc вызывает f в отдельной горутине через d.
func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Fake реализует управляемые часы для тестов. Таймеры срабатывают только в Advance.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *Fake
	at      time.Time
	f       func()
	stopped bool
}

// NewFake создаёт часы, показывающие now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now возвращает текущее время часов.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc регистрирует f к вызову при продвижении часов на d.
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance сдвигает время на d и синхронно вызывает наступившие таймеры
// в порядке их сроков. Таймеры, взведённые из обработчиков, тоже учитываются.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.nextDue()
		if t == nil {
			return
		}
		t.f()
	}
}

// Pending возвращает число невыполненных таймеров.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (c *Fake) nextDue() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].at.Before(c.timers[j].at)
	})

	if len(c.timers) == 0 || c.timers[0].at.After(c.now) {
		return nil
	}

	t := c.timers[0]
	t.stopped = true
	c.timers = c.timers[1:]
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
