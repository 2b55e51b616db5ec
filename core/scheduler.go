package core

import "sync"

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	next     *Timer
	queued   bool
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps timers sorted by wake time and runs the due ones when
// the target main loop calls Dispatch. It replaces the RTOS timer service.
type Scheduler struct {
	mu    sync.Mutex
	list  *Timer
	now   uint32
	fired uint32
}

// NewScheduler creates an empty scheduler at time zero
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// timeBefore compares tick values across counter wrap
func timeBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// SetTime sets the current time in ticks
func (s *Scheduler) SetTime(ticks uint32) {
	s.mu.Lock()
	s.now = ticks
	s.mu.Unlock()
}

// Now returns the current time in ticks
func (s *Scheduler) Now() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule adds a timer, moving it if it is already queued
func (s *Scheduler) Schedule(t *Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.queued {
		s.remove(t)
	}
	s.insert(t)
}

// ScheduleAfter (re)schedules a timer to fire ticks from now
func (s *Scheduler) ScheduleAfter(t *Timer, ticks uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.queued {
		s.remove(t)
	}
	t.WakeTime = s.now + ticks
	s.insert(t)
}

// Arm schedules a timer ticks from now unless it is already queued.
// It reports whether the timer was armed.
func (s *Scheduler) Arm(t *Timer, ticks uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.queued {
		return false
	}
	t.WakeTime = s.now + ticks
	s.insert(t)
	return true
}

// Cancel removes a timer if it is queued
func (s *Scheduler) Cancel(t *Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.queued {
		s.remove(t)
	}
}

// Pending reports whether the timer is queued
func (s *Scheduler) Pending(t *Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.queued
}

// insert inserts a timer in sorted order by WakeTime
func (s *Scheduler) insert(t *Timer) {
	t.queued = true
	if s.list == nil || timeBefore(t.WakeTime, s.list.WakeTime) {
		t.next = s.list
		s.list = t
		return
	}

	current := s.list
	for current.next != nil && !timeBefore(t.WakeTime, current.next.WakeTime) {
		current = current.next
	}

	t.next = current.next
	current.next = t
}

func (s *Scheduler) remove(t *Timer) {
	if s.list == t {
		s.list = t.next
	} else {
		for current := s.list; current != nil; current = current.next {
			if current.next == t {
				current.next = t.next
				break
			}
		}
	}
	t.next = nil
	t.queued = false
}

// Dispatch runs every timer whose WakeTime has passed. Handlers run
// without the scheduler lock held so they may schedule or cancel timers.
func (s *Scheduler) Dispatch() {
	for {
		s.mu.Lock()
		timer := s.list
		if timer == nil || timeBefore(s.now, timer.WakeTime) {
			s.mu.Unlock()
			return
		}
		s.list = timer.next
		timer.next = nil
		timer.queued = false
		s.fired++
		s.mu.Unlock()

		if timer.Handler(timer) == SF_RESCHEDULE {
			s.mu.Lock()
			if !timer.queued {
				s.insert(timer)
			}
			s.mu.Unlock()
		}
	}
}

// Fired returns how many timer handlers have run
func (s *Scheduler) Fired() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}
