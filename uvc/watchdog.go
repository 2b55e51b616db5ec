package uvc

import (
	"sync/atomic"

	"microscope/core"
)

// Watchdog aborts a frame that does not drain within the timeout
type Watchdog struct {
	sched   *core.Scheduler
	timer   core.Timer
	period  uint32
	expired atomic.Uint32
	onFire  func()
}

// NewWatchdog creates a stopped watchdog calling onFire on expiry
func NewWatchdog(sched *core.Scheduler, periodMS uint32, onFire func()) *Watchdog {
	w := &Watchdog{
		sched:  sched,
		period: core.TimerFromMS(periodMS),
		onFire: onFire,
	}
	w.timer.Handler = w.fire
	return w
}

func (w *Watchdog) fire(*core.Timer) uint8 {
	n := w.expired.Add(1)
	core.RecordEvent(core.EvtWatchdog, n, 0)
	core.DebugAsync("[UVC] frame watchdog expired")
	if w.onFire != nil {
		w.onFire()
	}
	return core.SF_DONE
}

// Start arms the watchdog unless it is already running
func (w *Watchdog) Start() {
	w.sched.Arm(&w.timer, w.period)
}

// Restart arms the watchdog with a full period from now
func (w *Watchdog) Restart() {
	w.sched.ScheduleAfter(&w.timer, w.period)
}

// Stop disarms the watchdog
func (w *Watchdog) Stop() {
	w.sched.Cancel(&w.timer)
}

// Armed reports whether the watchdog is running
func (w *Watchdog) Armed() bool {
	return w.sched.Pending(&w.timer)
}

// Expired returns how many times the watchdog fired
func (w *Watchdog) Expired() uint32 {
	return w.expired.Load()
}
