package service

import (
	"sync"
	"time"
)

// timerRegistry holds one pending inactivity timer per session id.
// Reset is atomic: the old timer is stopped and replaced under the same
// lock, so activity can never leave two timers armed, and a timer that
// fires after being replaced finds itself gone from the registry and
// does nothing.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]*time.Timer)}
}

// Reset cancels any pending timer for id and schedules fn after d.
func (r *timerRegistry) Reset(id string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.timers[id]; ok {
		existing.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		current, ok := r.timers[id]
		if !ok || current != timer {
			// Replaced or cancelled between firing and acquiring the lock.
			r.mu.Unlock()
			return
		}
		delete(r.timers, id)
		r.mu.Unlock()
		fn()
	})
	r.timers[id] = timer
}

// Cancel stops and removes the pending timer for id, if any.
func (r *timerRegistry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if timer, ok := r.timers[id]; ok {
		timer.Stop()
		delete(r.timers, id)
	}
}

// Len reports the number of armed timers.
func (r *timerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
