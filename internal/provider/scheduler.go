package provider

import (
	"sync"
	"time"
)

// scheduler owns at most one pending callback.
type scheduler struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Schedule replaces any pending callback with fn after delay.
func (s *scheduler) Schedule(delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, fn)
}

// Cancel stops the pending callback if any. Safe to call repeatedly. A
// callback that already started is not interrupted.
func (s *scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
