package uvc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"microscope/core"
)

func TestSessionStartSequence(t *testing.T) {
	r := newFakeRig()
	s, _ := newTestSession(r)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	want := "nak flush dma_reset dma_xfer unnak gpif_resume gpif_switch0 mipi_wakeup sensor_up"
	if got := strings.Join(r.log.calls, " "); got != want {
		t.Errorf("Start sequence:\n got  %s\n want %s", got, want)
	}
	if !s.Active() || !s.Pipeline().Active() {
		t.Error("Session not active after Start")
	}
	if r.focus.starts != 1 {
		t.Errorf("Expected autofocus start, got %d", r.focus.starts)
	}
}

func TestSessionStopSequence(t *testing.T) {
	r := newFakeRig()
	s, _ := newTestSession(r)
	s.Start()
	r.log.reset()

	s.HandleUSBEvent(USBEvent{Kind: USBSetInterface, Interface: 1, Alt: 0})

	want := "mipi_sleep sensor_down gpif_pause nak dma_reset flush clear_stall unnak"
	if got := strings.Join(r.log.calls, " "); got != want {
		t.Errorf("Stop sequence:\n got  %s\n want %s", got, want)
	}
	if s.Active() || r.sensor.on {
		t.Error("Session still active after alt 0")
	}
	if !r.usb.lpm {
		t.Error("LPM not re-enabled on stop")
	}
}

func TestSessionStartFailure(t *testing.T) {
	r := newFakeRig()
	s, _ := newTestSession(r)
	r.dma.failReset = true

	if err := s.Start(); err == nil {
		t.Fatal("Expected start error")
	}
	if s.Active() {
		t.Error("Session active after failed start")
	}
	if r.sensor.on {
		t.Error("Sensor powered after failed start")
	}
}

func TestSessionUSBEvents(t *testing.T) {
	tests := []struct {
		name   string
		event  USBEvent
		active bool
	}{
		{"alt 1 restarts", USBEvent{Kind: USBSetInterface, Interface: 1, Alt: 1}, true},
		{"alt 0 stops", USBEvent{Kind: USBSetInterface, Interface: 1, Alt: 0}, false},
		{"other interface ignored", USBEvent{Kind: USBSetInterface, Interface: 0, Alt: 0}, true},
		{"set config stops", USBEvent{Kind: USBSetConfig}, false},
		{"reset stops", USBEvent{Kind: USBReset}, false},
		{"disconnect stops", USBEvent{Kind: USBDisconnect}, false},
		{"connect stops", USBEvent{Kind: USBConnect}, false},
		{"clear halt stops", USBEvent{Kind: USBClearHalt}, false},
		{"commit restarts", USBEvent{Kind: USBCommit}, true},
	}

	for _, tt := range tests {
		r := newFakeRig()
		s, _ := newTestSession(r)
		s.Start()

		s.HandleUSBEvent(tt.event)
		if s.Active() != tt.active {
			t.Errorf("%s: active=%v, expected %v", tt.name, s.Active(), tt.active)
		}
	}
}

func TestSessionWatchdogRestart(t *testing.T) {
	r := newFakeRig()
	s, sched := newTestSession(r)
	s.HandleUSBEvent(USBEvent{Kind: USBCommit})

	// A frame starts and never drains
	produce(t, s.Pipeline(), 4096, 0)

	sched.SetTime(499)
	sched.Dispatch()
	s.Poll()
	if s.Starts() != 1 {
		t.Fatal("Session restarted before the watchdog period")
	}

	sched.SetTime(500)
	sched.Dispatch()
	if s.Watchdog().Expired() != 1 {
		t.Fatalf("Expected watchdog expiry, got %d", s.Watchdog().Expired())
	}
	s.Poll()
	if s.Starts() != 2 || !s.Active() {
		t.Errorf("Expected restart after watchdog, starts=%d active=%v", s.Starts(), s.Active())
	}
	if st := s.Pipeline().State(); st.Pending != 0 || st.Index != 0 {
		t.Errorf("Frame state not cleared by restart: %+v", st)
	}
}

func TestSessionWatchdogWithoutPreview(t *testing.T) {
	r := newFakeRig()
	s, _ := newTestSession(r)
	s.HandleUSBEvent(USBEvent{Kind: USBSetInterface, Interface: 1, Alt: 1})

	s.RequestReset()
	s.Poll()
	if s.Active() {
		t.Error("Session restarted without a committed preview")
	}
}

func TestSessionSuspend(t *testing.T) {
	r := newFakeRig()
	s, _ := newTestSession(r)
	s.Start()
	r.log.reset()

	s.HandleUSBEvent(USBEvent{Kind: USBSuspend})
	s.Poll()

	want := "mipi_sleep suspend mipi_wakeup"
	if got := strings.Join(r.log.calls, " "); got != want {
		t.Errorf("Suspend sequence: got %q, want %q", got, want)
	}
}

func TestSessionRun(t *testing.T) {
	r := newFakeRig()
	s, _ := newTestSession(r)
	s.HandleUSBEvent(USBEvent{Kind: USBCommit})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.RequestReset()
	deadline := time.Now().Add(time.Second)
	for s.Starts() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Starts() != 2 {
		t.Errorf("Session thread did not restart streaming")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSessionAutofocusControl(t *testing.T) {
	r := newFakeRig()
	s, _ := newTestSession(r)
	s.HandleUSBEvent(USBEvent{Kind: USBCommit})
	if r.focus.starts != 1 || !s.Autofocus() {
		t.Fatalf("Expected autofocus on at start, got %d starts", r.focus.starts)
	}

	// manual focus from the host
	s.HandleUSBEvent(USBEvent{Kind: USBAutofocus, Enable: false})
	if r.focus.stops != 1 || s.Autofocus() {
		t.Errorf("Expected autofocus stopped, got %d stops", r.focus.stops)
	}
	if !s.Active() {
		t.Error("Focus control stopped the stream")
	}

	// restarts keep the lens where the host put it
	s.HandleUSBEvent(USBEvent{Kind: USBCommit})
	s.RequestReset()
	s.Poll()
	if r.focus.starts != 1 {
		t.Errorf("Restart ran autofocus while it was off: %d starts", r.focus.starts)
	}

	s.HandleUSBEvent(USBEvent{Kind: USBAutofocus, Enable: true})
	if r.focus.starts != 2 || !s.Autofocus() {
		t.Errorf("Expected a homing run when autofocus is enabled, got %d starts", r.focus.starts)
	}
}

func TestSessionAutofocusWhileStopped(t *testing.T) {
	r := newFakeRig()
	s, _ := newTestSession(r)

	s.HandleUSBEvent(USBEvent{Kind: USBAutofocus, Enable: false})
	s.HandleUSBEvent(USBEvent{Kind: USBAutofocus, Enable: true})
	if r.focus.starts != 0 || r.focus.stops != 1 {
		t.Errorf("Expected only the stop while idle, got %d starts %d stops", r.focus.starts, r.focus.stops)
	}

	s.HandleUSBEvent(USBEvent{Kind: USBSetInterface, Interface: 1, Alt: 1})
	if r.focus.starts != 1 {
		t.Errorf("Expected autofocus with the stream, got %d starts", r.focus.starts)
	}
}

func TestSessionAutofocusWithoutMotor(t *testing.T) {
	r := newFakeRig()
	s := NewSession(testConfig(), r.hw, core.NewScheduler(), r.focus, nil)
	s.Start()

	s.HandleUSBEvent(USBEvent{Kind: USBAutofocus, Enable: true})
	if s.Autofocus() || r.focus.starts != 0 {
		t.Error("Autofocus enabled without a focus engine")
	}
}
