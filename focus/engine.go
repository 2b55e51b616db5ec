package focus

import (
	"context"
	"sync"

	"microscope/config"
	"microscope/core"
)

// Focus thread event flags
const (
	FlagAbort  = 1 << 0
	FlagHome   = 1 << 1
	FlagPixels = 1 << 2
	FlagFrame  = 1 << 3

	flagMask = FlagAbort | FlagHome | FlagPixels | FlagFrame
)

// Status is a consistent copy of the engine state for reporting
type Status struct {
	State     State
	Home      HomeState
	Motor     MotorState
	Energized bool
	Contrast  uint32
	Best      uint32
	BestPos   int32
	Frames    uint32
	Gaps      uint32
}

// Engine runs the autofocus loop on its own goroutine. Capture callbacks
// feed it through FocusSetLine and FocusEndFrame; the session starts and
// aborts it.
type Engine struct {
	events  *core.EventGroup
	stepper *Stepper
	home    *HomeSensor
	sweep   Sweep

	// capture side, called from DMA callbacks
	tapMu   sync.Mutex
	tracker *Tracker

	// single-slot mailbox, latest window wins
	boxMu   sync.Mutex
	box     Window
	boxFull bool

	// focus thread state, copied out under mu
	mu     sync.Mutex
	loop   Loop
	work   Window
	frames uint32
	hook   func(Status)
}

// NewEngine creates the focus engine for the given motor and switch
func NewEngine(cfg *config.Config, stepper *Stepper, home *HomeSensor) *Engine {
	g := cfg.Geometry()
	return &Engine{
		events:  core.NewEventGroup(),
		stepper: stepper,
		home:    home,
		sweep: Sweep{
			Limits: Limits{
				Top:    cfg.Focus.TopLimit,
				Bottom: cfg.Focus.BottomLimit,
				N:      cfg.Focus.NSteps,
			},
			StepMax:    cfg.Focus.StepMax,
			Hysteresis: cfg.Focus.Hysteresis,
			StartGreen: cfg.Focus.StartGreen,
		},
		tracker: NewTracker(g),
		box:     NewWindow(g.CaptureBytes),
		work:    NewWindow(g.CaptureBytes),
	}
}

// FocusSetLine passes a produced capture payload to the window tracker.
// When it completes the window the rows are posted to the focus thread.
func (e *Engine) FocusSetLine(index int, payload []byte) {
	e.tapMu.Lock()
	ready := e.tracker.OnBufferProduced(index, payload)
	if ready {
		e.boxMu.Lock()
		e.tracker.Snapshot(&e.box)
		e.boxFull = true
		e.boxMu.Unlock()
	}
	e.tapMu.Unlock()

	if ready {
		e.events.Set(FlagPixels)
	}
}

// FocusEndFrame signals that a frame of the given number of buffers fully
// drained to USB
func (e *Engine) FocusEndFrame(buffers int) {
	e.tapMu.Lock()
	e.tracker.OnFrameEnd(buffers)
	e.tapMu.Unlock()

	e.events.Set(FlagFrame)
}

// FocusStart requests a homing run followed by a focus sweep
func (e *Engine) FocusStart() {
	e.events.Set(FlagHome)
}

// FocusStop aborts autofocus and de-energises the motor. A home request
// still pending is dropped, so one seen with Abort was posted after it.
func (e *Engine) FocusStop() {
	e.events.Replace(FlagHome, FlagAbort)
}

// Run is the focus thread. It returns when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	core.DebugPrintln("[FOCUS] thread started")
	for {
		flags, err := e.events.Wait(ctx, flagMask)
		if err != nil {
			return err
		}
		e.Process(flags)
	}
}

// Poll processes any pending events without blocking
func (e *Engine) Poll() {
	if flags := e.events.Get(flagMask); flags != 0 {
		e.Process(flags)
	}
}

// Process handles one batch of event flags. Abort is taken first and
// discards pixel and frame events in the batch. A home request in the same
// batch came after the abort and starts a new run.
func (e *Engine) Process(flags uint32) {
	e.mu.Lock()
	before := e.loop

	if flags&FlagAbort != 0 {
		e.dispatch(Event{Kind: EventAbort})
		if flags&FlagHome != 0 {
			e.dispatch(Event{Kind: EventHome})
		}
	} else {
		if flags&FlagHome != 0 {
			e.dispatch(Event{Kind: EventHome})
		}
		if flags&FlagPixels != 0 && e.takeWindow() {
			e.dispatch(Event{Kind: EventPixels, Window: &e.work})
			if e.loop.State != StateHome {
				core.RecordEvent(core.EvtContrast, e.loop.Contrast, uint32(e.loop.ContrastPos))
				core.DebugAsync("[FOCUS] contrast=" + core.Utoa(e.loop.Contrast) +
					" pos=" + core.Itoa(int(e.loop.ContrastPos)))
			}
		}
		if flags&FlagFrame != 0 {
			e.frames++
			e.stepper.Step()
			e.dispatch(Event{Kind: EventFrame})
		}
	}

	changed := before.State != e.loop.State || before.Home != e.loop.Home
	var status Status
	hook := e.hook
	if changed {
		core.RecordEvent(core.EvtFocusState, uint32(e.loop.State), uint32(e.loop.Home))
		core.DebugAsync("[FOCUS] state " + e.loop.State.String() + " home " + e.loop.Home.String())
		status = e.statusLocked()
	}
	e.mu.Unlock()

	if changed && hook != nil {
		hook(status)
	}
}

func (e *Engine) takeWindow() bool {
	e.boxMu.Lock()
	defer e.boxMu.Unlock()
	if !e.boxFull {
		return false
	}
	e.work.CopyFrom(&e.box)
	e.boxFull = false
	return true
}

// dispatch runs one transition and applies its effects to the motor
func (e *Engine) dispatch(ev Event) {
	pos := e.stepper.State().Position

	// The switch is only sampled while homing is in progress
	switchActive := false
	if ev.Kind == EventFrame && e.loop.State == StateHome && !e.loop.Home.Terminal() {
		switchActive = e.home.Active()
	}

	var fx Effects
	e.loop, pos, fx = e.loop.Handle(ev, pos, switchActive, e.sweep)
	e.stepper.Reposition(pos)

	if fx.EnableMotor {
		e.stepper.Enable()
	}
	if fx.DisableMotor {
		e.stepper.Disable()
	}
}

// SetStatusHook registers a function called after every state change
func (e *Engine) SetStatusHook(hook func(Status)) {
	e.mu.Lock()
	e.hook = hook
	e.mu.Unlock()
}

// Status returns a snapshot of the focus state
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	e.tapMu.Lock()
	gaps := e.tracker.Gaps()
	e.tapMu.Unlock()

	return Status{
		State:     e.loop.State,
		Home:      e.loop.Home,
		Motor:     e.stepper.State(),
		Energized: e.stepper.Energized(),
		Contrast:  e.loop.Contrast,
		Best:      e.loop.Best,
		BestPos:   e.loop.BestPos,
		Frames:    e.frames,
		Gaps:      gaps,
	}
}
