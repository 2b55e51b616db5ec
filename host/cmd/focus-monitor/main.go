package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"microscope/host/monitor"
	"microscope/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "Debug UART device path")
	baud    = flag.Int("baud", 115200, "Debug UART baud rate")
	broker  = flag.String("broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables publishing)")
	topic   = flag.String("topic", "microscope", "MQTT topic prefix")
	qos     = flag.Int("qos", 0, "MQTT quality of service")
	verbose = flag.Bool("verbose", false, "Print every focus report")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	port, err := serial.Open(cfg)
	if err != nil {
		return err
	}
	defer port.Close()

	mon := monitor.New(os.Stdout, nil, *topic)
	if *broker != "" {
		mqttPub, err := monitor.NewMQTTPublisher(monitor.MQTTConfig{
			Broker:   *broker,
			ClientID: "focus-monitor-" + mon.RunID()[:8],
			QoS:      byte(*qos),
		})
		if err != nil {
			return err
		}
		defer mqttPub.Close()
		mon.SetPublisher(mqttPub)
		fmt.Printf("Publishing to %s under %s\n", *broker, mon.Topic("#"))
	}
	mon.SetVerbose(*verbose)

	fmt.Printf("Reading telemetry from %s at %d baud\n", cfg.Device, cfg.Baud)
	err = mon.Run(ctx, port)

	c := mon.Counters()
	fmt.Printf("\n%d messages (%d focus, %d stats, %d log), %d framing errors, %d publish errors\n",
		c.Messages, c.Focus, c.Stats, c.Logs, c.BadFrames, c.PubErrors)
	if err == context.Canceled {
		return nil
	}
	return err
}
