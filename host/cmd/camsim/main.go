package main

import (
	"flag"
	"fmt"
	"os"

	"microscope/camera"
	"microscope/config"
	"microscope/core"
	"microscope/host/monitor"
	"microscope/targets/sim"
	"microscope/uvc"
)

var (
	configPath = flag.String("config", "", "Camera configuration JSON (default: built-in)")
	width      = flag.Int("width", 320, "Frame width override (0 keeps the configured width)")
	height     = flag.Int("height", 240, "Frame height override (0 keeps the configured height)")
	frames     = flag.Int("frames", 300, "Frames to simulate")
	lensStart  = flag.Int("lens", 40, "Initial lens position in steps above the home edge")
	bestFocus  = flag.Int("best", 30, "Lens position of best focus")
	stallAt    = flag.Int("stall-at", -1, "Frame at which capture stalls long enough to trip the watchdog")
	stillAt    = flag.Int("still-at", -1, "Frame at which a still image is requested")
	manualAt   = flag.Int("manual-at", -1, "Frame at which the host switches to manual focus")
	autoAt     = flag.Int("auto-at", -1, "Frame at which the host re-enables autofocus")
	highSpeed  = flag.Bool("high-speed", false, "Simulate a USB 2.0 link")
	broker     = flag.String("broker", "", "MQTT broker URL for telemetry records (empty disables)")
	debug      = flag.Bool("debug", false, "Print firmware debug output on stderr")
)

const framePeriodMS = 33

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	data := []byte("{}")
	if *configPath != "" {
		var err error
		data, err = os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := config.LoadConfig(data)
	if err != nil {
		return nil, err
	}
	if *highSpeed && *configPath == "" {
		cfg.Speed = config.SpeedHigh
		cfg.Stream.DataBufferSize, cfg.Stream.BufferCount = config.SpeedPreset(cfg.Speed)
	}
	if *width > 0 {
		cfg.Stream.Width = *width
	}
	if *height > 0 {
		cfg.Stream.Height = *height
	}
	return cfg, cfg.Validate()
}

// telemetrySink feeds reporter output straight into the monitor
type telemetrySink struct {
	mon *monitor.Monitor
}

func (s telemetrySink) Write(p []byte) (int, error) {
	s.mon.Handle(p)
	return len(p), nil
}

func run() error {
	core.SetDebugWriter(func(msg string) { fmt.Fprintln(os.Stderr, msg) })
	core.SetDebugEnabled(*debug)
	core.InitAsyncDebug()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mon := monitor.New(os.Stdout, nil, "microscope")
	if *broker != "" {
		pub, err := monitor.NewMQTTPublisher(monitor.MQTTConfig{
			Broker:   *broker,
			ClientID: "camsim-" + mon.RunID()[:8],
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		mon.SetPublisher(pub)
	}

	gpio := sim.NewGPIODriver()
	lens := sim.NewLens(cfg.Motor.Pattern, int32(*lensStart), 0)
	gpio.SetInput(core.GPIOPin(cfg.Motor.HomePin), func() bool {
		return lens.HomeActive() != cfg.Motor.HomeActiveLow
	})
	board := sim.NewBoard(cfg.Stream, cfg.Speed == config.SpeedSuper)
	scene := sim.NewScene(cfg.Stream.Width, cfg.Stream.Height, int32(*bestFocus))

	m, err := camera.NewManagerWithConfig(cfg, camera.Hardware{
		GPIO:      gpio,
		MotorSPI:  sim.NewSPIDriver(lens.OnWord),
		SensorI2C: sim.NewSensorBus(cfg.Sensor.Address),
		DMA:       board,
		GPIF:      board,
		USB:       board,
		MIPI:      board,
		Power:     board,
		Telemetry: telemetrySink{mon},
	})
	if err != nil {
		return err
	}
	board.Attach(m.Session().Pipeline(), m.Session().Switcher())

	fmt.Printf("Simulating %dx%d, %d byte buffers, lens at %d, best focus at %d\n",
		cfg.Stream.Width, cfg.Stream.Height, cfg.Stream.DataBufferSize, *lensStart, *bestFocus)

	m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBCommit})

	frame := make([]byte, scene.FrameBytes())
	clock := uint32(0)
	for i := 0; i < *frames; i++ {
		if i == *stallAt {
			// no frames for longer than the watchdog period
			clock += cfg.Stream.FrameTimeoutMS + framePeriodMS
			m.Tick(core.TimerFromMS(clock))
			m.Poll()
			continue
		}
		if i == *stillAt {
			m.Session().Pipeline().RequestStill()
		}
		if i == *manualAt {
			m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBAutofocus, Enable: false})
		}
		if i == *autoAt {
			m.HandleUSBEvent(uvc.USBEvent{Kind: uvc.USBAutofocus, Enable: true})
		}

		clock += framePeriodMS
		m.Tick(core.TimerFromMS(clock))
		scene.Render(frame, lens.Position())
		board.CaptureFrame(frame)
		board.Drain()
		m.Poll()
	}

	s := m.Focus().Status()
	host := board.Host().Stats()
	fmt.Printf("\nfocus %s/%s lens=%d (best %d) contrast=%d best=%d@%d\n",
		s.State, s.Home, lens.Position(), *bestFocus, s.Contrast, s.Best, s.BestPos)
	fmt.Printf("host: %d frames (%d still) in %d transfers, %d dropped, %d bad headers\n",
		host.Frames, host.StillFrames, host.Transfers, host.Dropped, host.BadHeaders)
	fmt.Printf("session: %d starts, %d watchdog resets, %d lens steps, %d missed\n",
		m.Session().Starts(), m.Session().Watchdog().Expired(), lens.Moves(), lens.Missed())
	return nil
}
