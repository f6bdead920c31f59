package proctor

import "time"

// Clock abstracts wall time so timers can be driven manually in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending one-shot callback.
type Timer interface {
	Stop() bool
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// TimerID identifies a tracked timer.
type TimerID uint64

type trackedTimer struct {
	owner State
	timer Timer
}

// Scheduler tracks every outstanding timer of one attempt. Callbacks are
// posted back onto the controller loop and skipped if the handle was
// cancelled in the meantime. It must only be used from the loop goroutine.
type Scheduler struct {
	clock  Clock
	post   func(func())
	seq    TimerID
	timers map[TimerID]*trackedTimer
}

func newScheduler(clock Clock, post func(func())) *Scheduler {
	return &Scheduler{clock: clock, post: post, timers: make(map[TimerID]*trackedTimer)}
}

// After schedules fn once after d. The timer is cleared when owner is exited.
func (s *Scheduler) After(owner State, d time.Duration, fn func()) TimerID {
	s.seq++
	id := s.seq
	tt := &trackedTimer{owner: owner}
	s.timers[id] = tt
	tt.timer = s.clock.AfterFunc(d, func() {
		s.post(func() {
			if s.timers[id] != tt {
				return
			}
			delete(s.timers, id)
			fn()
		})
	})
	return id
}

// Every runs fn every d until fn returns false or the timer is cleared.
func (s *Scheduler) Every(owner State, d time.Duration, fn func() bool) TimerID {
	s.seq++
	id := s.seq
	tt := &trackedTimer{owner: owner}
	s.timers[id] = tt

	var arm func()
	arm = func() {
		tt.timer = s.clock.AfterFunc(d, func() {
			s.post(func() {
				if s.timers[id] != tt {
					return
				}
				if fn() && s.timers[id] == tt {
					arm()
					return
				}
				delete(s.timers, id)
			})
		})
	}
	arm()
	return id
}

// Cancel stops one timer. It reports whether the timer was still pending.
func (s *Scheduler) Cancel(id TimerID) bool {
	tt, ok := s.timers[id]
	if !ok {
		return false
	}
	delete(s.timers, id)
	if tt.timer != nil {
		tt.timer.Stop()
	}
	return true
}

// ClearOwner cancels every timer owned by state and returns how many were live.
func (s *Scheduler) ClearOwner(owner State) int {
	n := 0
	for id, tt := range s.timers {
		if tt.owner == owner && s.Cancel(id) {
			n++
		}
	}
	return n
}

// ClearAll cancels every tracked timer.
func (s *Scheduler) ClearAll() int {
	n := 0
	for id := range s.timers {
		if s.Cancel(id) {
			n++
		}
	}
	return n
}

// Pending is the number of live timers.
func (s *Scheduler) Pending() int { return len(s.timers) }

// Active reports whether id is still pending.
func (s *Scheduler) Active(id TimerID) bool {
	_, ok := s.timers[id]
	return ok
}
