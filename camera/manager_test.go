package camera

import (
	"bytes"
	"errors"
	"testing"

	"microscope/config"
	"microscope/core"
	"microscope/focus"
	"microscope/protocol"
	"microscope/targets/sim"
	"microscope/uvc"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Stream.Width = 64
	cfg.Stream.Height = 12
	cfg.Stream.DataBufferSize = 112
	cfg.Focus.LineLength = 20
	cfg.ReportEveryFrames = 10
	return cfg
}

// simRig runs a manager on simulated hardware with a lens in front of a
// bar target
type simRig struct {
	cfg       *config.Config
	gpio      *sim.GPIODriver
	lens      *sim.Lens
	board     *sim.Board
	scene     *sim.Scene
	telemetry bytes.Buffer
	m         *Manager
	clock     uint32
	frame     []byte
}

func newSimRig(t *testing.T, withMotor bool) *simRig {
	t.Helper()

	cfg := testConfig()
	r := &simRig{
		cfg:   cfg,
		gpio:  sim.NewGPIODriver(),
		lens:  sim.NewLens(cfg.Motor.Pattern, 40, 0),
		board: sim.NewBoard(cfg.Stream, true),
		scene: sim.NewScene(int(cfg.Stream.Width), int(cfg.Stream.Height), 30),
	}
	r.frame = make([]byte, r.scene.FrameBytes())
	r.gpio.SetInput(core.GPIOPin(cfg.Motor.HomePin), r.lens.HomeActive)

	hw := Hardware{
		SensorI2C: sim.NewSensorBus(cfg.Sensor.Address),
		DMA:       r.board,
		GPIF:      r.board,
		USB:       r.board,
		MIPI:      r.board,
		Power:     r.board,
		Telemetry: &r.telemetry,
	}
	if withMotor {
		hw.GPIO = r.gpio
		hw.MotorSPI = sim.NewSPIDriver(r.lens.OnWord)
	}

	m, err := NewManagerWithConfig(cfg, hw)
	if err != nil {
		t.Fatalf("NewManagerWithConfig failed: %v", err)
	}
	r.m = m
	r.board.Attach(m.Session().Pipeline(), m.Session().Switcher())
	return r
}

// frameOut advances one frame period, captures and drains a frame and
// runs the firmware threads once
func (r *simRig) frameOut() {
	r.clock += 33
	r.m.Tick(r.clock)
	r.scene.Render(r.frame, r.lens.Position())
	r.board.CaptureFrame(r.frame)
	r.board.Drain()
	r.m.Poll()
}

func (r *simRig) runUntilHold(t *testing.T) {
	t.Helper()
	for i := 0; i < 400; i++ {
		r.frameOut()
		s := r.m.Focus().Status()
		if s.State == focus.StateHold && s.Motor.AtTarget() {
			return
		}
	}
	t.Fatalf("Autofocus did not settle: %+v", r.m.Focus().Status())
}

func (r *simRig) messages(t *testing.T) []protocol.Message {
	t.Helper()
	d := protocol.NewDecoder()
	msgs := d.Feed(r.telemetry.Bytes())
	if d.Resyncs != 0 || d.SeqGaps != 0 {
		t.Errorf("Telemetry stream damaged: %d resyncs %d gaps", d.Resyncs, d.SeqGaps)
	}
	return msgs
}

func TestManagerStreamsAndFocuses(t *testing.T) {
	r := newSimRig(t, true)
	r.m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBCommit})
	if !r.m.Session().Active() {
		t.Fatal("Session did not start on commit")
	}

	r.runUntilHold(t)

	if d := r.lens.Position() - r.scene.BestFocus; d < -1 || d > 1 {
		t.Errorf("Lens settled at %d, best focus is %d", r.lens.Position(), r.scene.BestFocus)
	}

	host := r.board.Host().Stats()
	if host.Frames == 0 || host.FIDRepeats != 0 || host.Dropped != 0 {
		t.Errorf("Unexpected host stats %+v", host)
	}
	if r.m.Session().Watchdog().Expired() != 0 {
		t.Error("Watchdog fired during a healthy stream")
	}

	var last protocol.FocusStatus
	statuses, stats := 0, 0
	for _, msg := range r.messages(t) {
		switch msg.ID {
		case protocol.MsgFocusStatus:
			s, err := msg.FocusStatus()
			if err != nil {
				t.Fatalf("Bad focus status: %v", err)
			}
			last = s
			statuses++
		case protocol.MsgFrameStats:
			s, err := msg.FrameStats()
			if err != nil {
				t.Fatalf("Bad frame stats: %v", err)
			}
			if s.Frames%10 != 0 || s.Starts != 1 {
				t.Errorf("Unexpected frame stats %+v", s)
			}
			stats++
		}
	}
	if statuses < 5 || last.State != uint8(focus.StateHold) {
		t.Errorf("Expected focus reports ending in HOLD, got %d ending in %d", statuses, last.State)
	}
	if want := int(host.Frames) / 10; stats != want {
		t.Errorf("Expected %d stats reports, got %d", want, stats)
	}
}

func TestManagerWatchdogRehomes(t *testing.T) {
	r := newSimRig(t, true)
	r.m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBCommit})
	r.runUntilHold(t)

	// capture stalls
	r.clock += 600
	r.m.Tick(r.clock)
	r.m.Poll()

	if r.m.Session().Watchdog().Expired() != 1 {
		t.Fatalf("Expected one watchdog expiry, got %d", r.m.Session().Watchdog().Expired())
	}
	if r.m.Session().Starts() != 2 || !r.m.Session().Active() {
		t.Errorf("Expected the stream to restart, got %d starts", r.m.Session().Starts())
	}
	if s := r.m.Focus().Status(); s.State != focus.StateHome {
		t.Errorf("Expected a new homing run, got %v", s.State)
	}

	r.runUntilHold(t)
	if d := r.lens.Position() - r.scene.BestFocus; d < -1 || d > 1 {
		t.Errorf("Lens settled at %d after restart", r.lens.Position())
	}
}

func TestManagerStopKeepsFocusState(t *testing.T) {
	r := newSimRig(t, true)
	r.m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBCommit})
	for i := 0; i < 5; i++ {
		r.frameOut()
	}

	r.m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBSetInterface, Interface: 1, Alt: 0})
	r.frameOut()

	if r.m.Session().Active() {
		t.Fatal("Session still active after alt setting 0")
	}
	if st := r.board.State(); !st.Paused || st.MIPIAwake {
		t.Errorf("Capture not stopped: %+v", st)
	}
	// the focus thread keeps its state until the next start
	if s := r.m.Focus().Status(); s.State != focus.StateHome {
		t.Errorf("Stop should not abort the focus engine, got %v", s.State)
	}
}

func TestManagerAutofocusControl(t *testing.T) {
	r := newSimRig(t, true)
	r.m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBCommit})
	r.runUntilHold(t)

	// the host switches to manual focus
	r.m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBAutofocus, Enable: false})
	r.frameOut()
	s := r.m.Focus().Status()
	if s.State != focus.StateIdle || s.Energized {
		t.Fatalf("Expected an idle de-energised motor, got %v energized=%v", s.State, s.Energized)
	}
	held := r.lens.Position()
	for i := 0; i < 5; i++ {
		r.frameOut()
	}
	if r.lens.Position() != held || !r.m.Session().Active() {
		t.Errorf("Lens moved or stream stopped under manual focus")
	}

	// a stream restart leaves autofocus off
	r.m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBCommit})
	r.frameOut()
	if s := r.m.Focus().Status(); s.State != focus.StateIdle {
		t.Errorf("Restart rehomed with autofocus off, got %v", s.State)
	}

	r.m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBAutofocus, Enable: true})
	r.frameOut()
	if s := r.m.Focus().Status(); s.State != focus.StateHome {
		t.Fatalf("Expected a homing run after enabling autofocus, got %v", s.State)
	}
	r.runUntilHold(t)
	if d := r.lens.Position() - r.scene.BestFocus; d < -1 || d > 1 {
		t.Errorf("Lens settled at %d, best focus is %d", r.lens.Position(), r.scene.BestFocus)
	}
}

func TestManagerWithoutMotor(t *testing.T) {
	r := newSimRig(t, false)
	if r.m.Focus() != nil {
		t.Fatal("Focus engine created without a motor")
	}

	r.m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBCommit})
	for i := 0; i < 20; i++ {
		r.frameOut()
	}

	if got := r.board.Host().Stats().Frames; got != 20 {
		t.Errorf("Expected 20 frames, got %d", got)
	}
	if !bytes.Equal(r.board.Host().LastFrame(), r.frame) {
		t.Error("Last frame corrupted")
	}
	stats := r.m.Reporter().Stats()
	if stats.Frames != 20 || stats.WindowGaps != 0 {
		t.Errorf("Unexpected reporter stats %+v", stats)
	}
}

func TestNewManagerErrors(t *testing.T) {
	cfg := testConfig()
	board := sim.NewBoard(cfg.Stream, false)
	hw := Hardware{
		SensorI2C: sim.NewSensorBus(cfg.Sensor.Address),
		DMA:       board,
		GPIF:      board,
		USB:       board,
		MIPI:      board,
		Power:     board,
	}

	_, err := NewManager([]byte(`{"Speed": "warp"}`), hw)
	var verr *config.ValidationError
	if !errors.As(err, &verr) || verr.Field != "Speed" {
		t.Errorf("Expected a Speed validation error, got %v", err)
	}

	_, err = NewManager([]byte(`{not json`), hw)
	if err == nil {
		t.Error("Expected a JSON error")
	}

	hw.DMA = nil
	if _, err := NewManagerWithConfig(cfg, hw); err == nil {
		t.Error("Expected an error for missing hardware")
	}

	hw.DMA = board
	m, err := NewManager([]byte(`{}`), hw)
	if err != nil {
		t.Fatalf("Default config rejected: %v", err)
	}
	if m.Config().Stream.DataBufferSize != 0x6000-16 {
		t.Errorf("Expected SuperSpeed buffers, got %d", m.Config().Stream.DataBufferSize)
	}
}

func TestReporterLog(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(&out, 0)
	r.Log("hello")
	r.FrameDone()
	r.Poll()

	msgs := protocol.NewDecoder().Feed(out.Bytes())
	if len(msgs) != 1 {
		t.Fatalf("Expected one frame, got %d", len(msgs))
	}
	text, err := msgs[0].Log()
	if err != nil || text != "hello" {
		t.Errorf("Expected hello, got %q %v", text, err)
	}
	if r.Sent() != 1 || r.Errors() != 0 {
		t.Errorf("Unexpected counters sent=%d errors=%d", r.Sent(), r.Errors())
	}
}
