// Package debounce provides a trailing-edge debounced task: each trigger
// cancels the outstanding timer and schedules the newest function after the
// full delay. There is no leading-edge fire.
package debounce

import (
	"sync"
	"time"
)

type Task struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending func()
}

func New(delay time.Duration) *Task {
	if delay <= 0 {
		delay = 400 * time.Millisecond
	}
	return &Task{delay: delay}
}

// Trigger schedules fn to run after the delay, replacing any outstanding
// scheduled function.
func (t *Task) Trigger(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.pending = fn
	t.timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		fn := t.pending
		t.pending = nil
		t.timer = nil
		t.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// Stop cancels the outstanding scheduled function, if any.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
}

// Flush runs the outstanding scheduled function immediately instead of
// waiting for the timer.
func (t *Task) Flush() {
	t.mu.Lock()
	fn := t.pending
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}
