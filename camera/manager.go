// Package camera assembles the microscope firmware: the image sensor, the
// streaming session with its capture pipeline, the autofocus engine and
// the telemetry reporter, all driven through target supplied hardware.
package camera

import (
	"context"
	"errors"
	"io"
	"sync"

	"microscope/config"
	"microscope/core"
	"microscope/focus"
	"microscope/sensor"
	"microscope/uvc"
)

// Hardware is every peripheral the firmware drives. GPIO and MotorSPI may
// be nil on boards without a focus motor.
type Hardware struct {
	GPIO      core.GPIODriver
	MotorSPI  core.SPIDriver
	SensorI2C core.I2CDriver
	DMA       uvc.DMAChannel
	GPIF      uvc.GPIFDriver
	USB       uvc.USBEndpoint
	MIPI      uvc.MIPIDriver
	Power     uvc.PowerDriver
	Telemetry io.Writer // debug UART, nil to disable reports
}

// Manager coordinates all camera components
type Manager struct {
	cfg      *config.Config
	sched    *core.Scheduler
	sensor   *sensor.AR0330
	stepper  *focus.Stepper
	engine   *focus.Engine
	session  *uvc.Session
	reporter *Reporter
}

// NewManager creates a manager from a JSON configuration
func NewManager(configData []byte, hw Hardware) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}

	return NewManagerWithConfig(cfg, hw)
}

// NewManagerWithConfig creates a manager with an existing config
func NewManagerWithConfig(cfg *config.Config, hw Hardware) (*Manager, error) {
	if hw.SensorI2C == nil || hw.DMA == nil || hw.GPIF == nil || hw.USB == nil ||
		hw.MIPI == nil || hw.Power == nil {
		return nil, errors.New("camera: missing capture hardware")
	}

	m := &Manager{
		cfg:   cfg,
		sched: core.NewScheduler(),
	}
	core.SetTraceClock(m.sched.Now)

	cam, err := sensor.New(cfg, hw.SensorI2C)
	if err != nil {
		return nil, err
	}
	m.sensor = cam
	if ok, err := cam.Probe(); err != nil {
		core.DebugPrintln("[CAM] sensor probe failed: " + err.Error())
	} else if !ok {
		core.DebugPrintln("[CAM] unexpected sensor chip version")
	}

	if hw.MotorSPI != nil && hw.GPIO != nil {
		m.stepper, err = focus.NewStepper(cfg, hw.MotorSPI, hw.GPIO)
		if err != nil {
			return nil, err
		}
		home, err := focus.NewHomeSensor(cfg.Motor, hw.GPIO)
		if err != nil {
			return nil, err
		}
		m.engine = focus.NewEngine(cfg, m.stepper, home)
	}

	m.reporter = NewReporter(hw.Telemetry, cfg.ReportEveryFrames)

	// Interfaces stay nil without a motor
	tap := &frameTap{engine: m.engine, reporter: m.reporter}
	var af uvc.Autofocus
	if m.engine != nil {
		af = m.engine
		m.engine.SetStatusHook(m.reporter.FocusChanged)
	}

	m.session = uvc.NewSession(cfg, uvc.Hardware{
		DMA:    hw.DMA,
		GPIF:   hw.GPIF,
		USB:    hw.USB,
		MIPI:   hw.MIPI,
		Power:  hw.Power,
		Sensor: cam,
	}, m.sched, tap, af)
	m.reporter.attach(m.session, m.engine)

	core.DebugPrintln("[CAM] " + core.Itoa(int(cfg.Stream.Width)) + "x" + core.Itoa(int(cfg.Stream.Height)) +
		" speed=" + cfg.Speed + " buffers=" + core.Itoa(int(cfg.Stream.BufferCount)) +
		"x" + core.Itoa(int(cfg.Stream.DataBufferSize)))
	return m, nil
}

// frameTap fans capture callbacks out to the focus engine and reporter
type frameTap struct {
	engine   *focus.Engine
	reporter *Reporter
}

func (t *frameTap) FocusSetLine(index int, payload []byte) {
	if t.engine != nil {
		t.engine.FocusSetLine(index, payload)
	}
}

func (t *frameTap) FocusEndFrame(buffers int) {
	if t.engine != nil {
		t.engine.FocusEndFrame(buffers)
	}
	t.reporter.FrameDone()
}

// Run starts the session, focus and reporter threads and blocks until
// ctx is cancelled or a thread fails
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	threads := []func(context.Context) error{m.session.Run, m.reporter.Run}
	if m.engine != nil {
		threads = append(threads, m.engine.Run)
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, run := range threads {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(run)
	}
	wg.Wait()
	return firstErr
}

// Tick advances the firmware clock and runs due timers. Targets call it
// from their timer interrupt or main loop.
func (m *Manager) Tick(now uint32) {
	m.sched.SetTime(now)
	m.sched.Dispatch()
}

// Poll runs one pass of every thread without blocking, for targets that
// drive the firmware from a single loop
func (m *Manager) Poll() {
	m.session.Poll()
	if m.engine != nil {
		m.engine.Poll()
	}
	m.reporter.Poll()
}

// HandleUSBEvent passes a USB stack event to the session
func (m *Manager) HandleUSBEvent(ev uvc.USBEvent) {
	m.session.HandleUSBEvent(ev)
}

// Config returns the resolved configuration
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Session returns the streaming session
func (m *Manager) Session() *uvc.Session {
	return m.session
}

// Focus returns the focus engine, nil without a motor
func (m *Manager) Focus() *focus.Engine {
	return m.engine
}

// Reporter returns the telemetry reporter
func (m *Manager) Reporter() *Reporter {
	return m.reporter
}

// Scheduler returns the firmware timer scheduler
func (m *Manager) Scheduler() *core.Scheduler {
	return m.sched
}
