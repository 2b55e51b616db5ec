package uvc

import (
	"context"
	"sync"

	"microscope/config"
	"microscope/core"
)

// Session thread event flags
const (
	FlagTimerReset = 1 << 4
	FlagSuspend    = 1 << 5

	sessionMask = FlagTimerReset | FlagSuspend
)

// USBEventKind identifies a bus or class request event
type USBEventKind uint8

const (
	USBSetInterface USBEventKind = iota
	USBSetConfig
	USBReset
	USBDisconnect
	USBConnect
	USBSuspend
	USBClearHalt // ClearFeature(ENDPOINT_HALT) on the video endpoint
	USBCommit    // VS_COMMIT_CONTROL SET_CUR
	USBAutofocus // CT_FOCUS_AUTO_CONTROL or CT_FOCUS_ABSOLUTE_CONTROL SET_CUR
)

// USBEvent is one event from the USB stack. Enable carries the autofocus
// control value; a manual focus request arrives as Enable false.
type USBEvent struct {
	Kind      USBEventKind
	Interface uint8
	Alt       uint8
	Enable    bool
}

// Hardware is the set of peripherals a session drives
type Hardware struct {
	DMA    DMAChannel
	GPIF   GPIFDriver
	USB    USBEndpoint
	MIPI   MIPIDriver
	Power  PowerDriver
	Sensor Sensor
}

// Session ties USB interface state, sensor power and the capture
// pipeline into one streaming lifecycle.
type Session struct {
	mu     sync.Mutex
	cfg    *config.Config
	hw     Hardware
	focus  Autofocus
	events *core.EventGroup

	pipeline *Pipeline
	switcher *Switcher
	watchdog *Watchdog

	active         bool
	mipiActive     bool
	previewStarted bool
	clearFeature   bool
	autofocus      bool
	starts         uint32
}

// NewSession builds the pipeline, switcher and frame watchdog for the
// given hardware. focus may be nil when no lens motor is fitted.
func NewSession(cfg *config.Config, hw Hardware, sched *core.Scheduler, tap FocusTap, focus Autofocus) *Session {
	s := &Session{
		cfg:       cfg,
		hw:        hw,
		focus:     focus,
		events:    core.NewEventGroup(),
		autofocus: focus != nil && !cfg.Focus.DisableAutofocus,
	}
	s.switcher = NewSwitcher(hw.GPIF, hw.DMA, cfg.Retries)
	s.watchdog = NewWatchdog(sched, cfg.Stream.FrameTimeoutMS, s.RequestReset)
	s.pipeline = NewPipeline(cfg.Stream, hw.DMA, hw.USB, s.switcher, s.watchdog, tap, s.RequestReset)
	return s
}

// Pipeline returns the capture pipeline fed by the DMA callbacks
func (s *Session) Pipeline() *Pipeline {
	return s.pipeline
}

// Switcher returns the socket switcher fed by GPIF interrupts
func (s *Session) Switcher() *Switcher {
	return s.switcher
}

// Watchdog returns the frame watchdog
func (s *Session) Watchdog() *Watchdog {
	return s.watchdog
}

// Active reports whether the session is streaming
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Starts returns how many times streaming was started
func (s *Session) Starts() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Start begins streaming
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start()
}

// Stop ends streaming
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop()
}

func (s *Session) start() error {
	s.active = true
	s.starts++
	s.pipeline.Activate()
	s.watchdog.Stop()

	core.RecordEvent(core.EvtSessionStart, s.starts, 0)
	core.DebugAsync("[UVC] session start")

	// NAK the endpoint while the pipe is cleaned up
	s.hw.USB.SetNak(true)
	s.hw.USB.Flush()
	if err := s.hw.DMA.Reset(); err != nil {
		core.DebugAsync("[UVC] start: channel reset error: " + err.Error())
		s.abortStart()
		return err
	}
	if err := s.hw.DMA.SetXfer(0); err != nil {
		core.DebugAsync("[UVC] start: set xfer error: " + err.Error())
		s.abortStart()
		return err
	}
	s.hw.USB.SetNak(false)

	s.hw.GPIF.Pause(false)
	s.switcher.Reset()

	s.retry("mipi_wakeup", s.hw.MIPI.Wakeup)
	s.retry("sensor_power_up", s.hw.Sensor.PowerUp)
	s.mipiActive = true

	if s.autofocus {
		s.focus.FocusStart()
	}
	return nil
}

func (s *Session) abortStart() {
	s.active = false
	s.pipeline.Deactivate()
	s.hw.USB.SetNak(false)
}

func (s *Session) stop() {
	s.active = false
	s.pipeline.Deactivate()

	core.RecordEvent(core.EvtSessionStop, s.starts, 0)
	core.DebugAsync("[UVC] session stop")

	s.retry("mipi_sleep", s.hw.MIPI.Sleep)
	s.retry("sensor_power_down", s.hw.Sensor.PowerDown)
	s.mipiActive = false

	s.watchdog.Stop()
	s.hw.GPIF.Pause(true)

	s.hw.USB.SetNak(true)
	if err := s.hw.DMA.Reset(); err != nil {
		core.DebugAsync("[UVC] stop: channel reset error: " + err.Error())
	}
	s.hw.USB.Flush()
	if s.clearFeature {
		s.hw.USB.ClearStall()
		s.clearFeature = false
	}
	s.hw.USB.SetNak(false)

	s.hw.USB.SetLPM(true)
}

func (s *Session) retry(op string, fn func() error) {
	core.Retry(op, s.cfg.Retries, fn)
}

// HandleUSBEvent applies a USB stack event to the session
func (s *Session) HandleUSBEvent(ev USBEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case USBSuspend:
		s.events.Set(FlagSuspend)

	case USBSetInterface:
		if ev.Interface != 1 {
			return
		}
		if ev.Alt == 1 {
			if s.active {
				s.clearFeature = true
				s.stop()
			}
			s.start()
		} else if ev.Alt == 0 {
			s.previewStarted = false
			s.clearFeature = true
			s.stop()
		}

	case USBSetConfig, USBReset, USBDisconnect, USBConnect:
		s.hw.USB.SetLPM(true)
		if s.active {
			s.clearFeature = true
			s.stop()
		}

	case USBClearHalt:
		if s.active {
			s.previewStarted = false
			s.clearFeature = true
			s.stop()
		}

	case USBCommit:
		s.previewStarted = true
		if s.active {
			s.clearFeature = false
			s.stop()
		}
		s.start()

	case USBAutofocus:
		s.setAutofocus(ev.Enable)
	}
}

// setAutofocus applies the host's autofocus control. Turning it on while
// streaming starts a homing run now; otherwise the next start does.
func (s *Session) setAutofocus(on bool) {
	if s.focus == nil {
		return
	}
	s.autofocus = on
	if on {
		core.DebugAsync("[UVC] autofocus on")
		if s.active {
			s.focus.FocusStart()
		}
		return
	}
	core.DebugAsync("[UVC] autofocus off")
	s.focus.FocusStop()
}

// Autofocus reports whether streaming starts run the focus sweep
func (s *Session) Autofocus() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autofocus
}

// RequestReset asks the session thread to restart streaming. It is
// called from the frame watchdog and on channel failures.
func (s *Session) RequestReset() {
	s.events.Set(FlagTimerReset)
}

// Run is the session thread. It returns when ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	core.DebugPrintln("[UVC] session thread started")
	for {
		flags, err := s.events.Wait(ctx, sessionMask)
		if err != nil {
			return err
		}
		s.Process(flags)
	}
}

// Poll processes pending session events without blocking
func (s *Session) Poll() {
	if flags := s.events.Get(sessionMask); flags != 0 {
		s.Process(flags)
	}
}

// Process handles one batch of session event flags
func (s *Session) Process(flags uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if flags&FlagTimerReset != 0 {
		core.DumpTraceRing()
		if s.active {
			s.clearFeature = false
			s.stop()
		}
		if s.previewStarted {
			s.start()
		}
	}

	if flags&FlagSuspend != 0 {
		s.retry("mipi_sleep", s.hw.MIPI.Sleep)
		if err := s.hw.Power.EnterSuspend(); err != nil {
			core.DebugAsync("[UVC] suspend error: " + err.Error())
		}
		if s.mipiActive {
			s.retry("mipi_wakeup", s.hw.MIPI.Wakeup)
		}
	}
}
