package core

import "testing"

func TestSchedulerOrder(t *testing.T) {
	s := NewScheduler()

	var order []int
	mk := func(id int, wake uint32) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(*Timer) uint8 {
				order = append(order, id)
				return SF_DONE
			},
		}
	}

	s.Schedule(mk(3, 30))
	s.Schedule(mk(1, 10))
	s.Schedule(mk(2, 20))

	s.SetTime(15)
	s.Dispatch()
	if len(order) != 1 || order[0] != 1 {
		t.Fatalf("Expected only timer 1 at t=15, got %v", order)
	}

	s.SetTime(30)
	s.Dispatch()
	if len(order) != 3 || order[1] != 2 || order[2] != 3 {
		t.Errorf("Expected order [1 2 3], got %v", order)
	}
}

func TestSchedulerReschedule(t *testing.T) {
	s := NewScheduler()

	count := 0
	timer := &Timer{WakeTime: 5}
	timer.Handler = func(tm *Timer) uint8 {
		count++
		if count < 3 {
			tm.WakeTime += 5
			return SF_RESCHEDULE
		}
		return SF_DONE
	}
	s.Schedule(timer)

	for now := uint32(0); now <= 40; now++ {
		s.SetTime(now)
		s.Dispatch()
	}

	if count != 3 {
		t.Errorf("Expected 3 runs, got %d", count)
	}
	if s.Pending(timer) {
		t.Error("Timer should not be pending after SF_DONE")
	}
}

func TestSchedulerCancelAndMove(t *testing.T) {
	s := NewScheduler()

	fired := false
	timer := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 {
		fired = true
		return SF_DONE
	}}

	s.Schedule(timer)
	s.Cancel(timer)
	s.SetTime(20)
	s.Dispatch()
	if fired {
		t.Fatal("Cancelled timer fired")
	}

	// Scheduling twice moves the timer instead of queueing it twice
	timer.WakeTime = 25
	s.Schedule(timer)
	timer.WakeTime = 50
	s.Schedule(timer)
	s.SetTime(30)
	s.Dispatch()
	if fired {
		t.Fatal("Timer fired at its old wake time")
	}
	s.SetTime(50)
	s.Dispatch()
	if !fired {
		t.Error("Timer did not fire at its new wake time")
	}
	if s.Fired() != 1 {
		t.Errorf("Expected 1 handler run, got %d", s.Fired())
	}
}

func TestSchedulerWrap(t *testing.T) {
	s := NewScheduler()
	s.SetTime(0xFFFFFFF0)

	fired := false
	s.Schedule(&Timer{WakeTime: 0x10, Handler: func(*Timer) uint8 {
		fired = true
		return SF_DONE
	}})

	s.Dispatch()
	if fired {
		t.Fatal("Timer fired before the counter wrapped")
	}

	s.SetTime(0x10)
	s.Dispatch()
	if !fired {
		t.Error("Timer did not fire after the counter wrapped")
	}
}

func TestTimerConversion(t *testing.T) {
	if TimerFromMS(500) != 500 {
		t.Errorf("Expected 500 ticks, got %d", TimerFromMS(500))
	}
	if TimerToMS(TimerFromMS(1234)) != 1234 {
		t.Error("Tick conversion does not round-trip")
	}
}

func TestSchedulerArm(t *testing.T) {
	s := NewScheduler()
	s.SetTime(100)

	fired := 0
	timer := &Timer{Handler: func(*Timer) uint8 {
		fired++
		return SF_DONE
	}}

	if !s.Arm(timer, 50) {
		t.Fatal("Arm should queue an idle timer")
	}
	s.SetTime(120)
	if s.Arm(timer, 50) {
		t.Error("Arm should not move a queued timer")
	}
	s.SetTime(150)
	s.Dispatch()
	if fired != 1 {
		t.Fatalf("Expected timer to fire at 150, fired %d", fired)
	}

	s.ScheduleAfter(timer, 10)
	s.ScheduleAfter(timer, 30)
	s.SetTime(170)
	s.Dispatch()
	if fired != 1 {
		t.Error("ScheduleAfter did not move the timer")
	}
	s.SetTime(180)
	s.Dispatch()
	if fired != 2 {
		t.Errorf("Expected 2 runs, got %d", fired)
	}
}
