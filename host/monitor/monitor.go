// Package monitor decodes camera telemetry from the debug UART, prints it
// and optionally republishes it as JSON.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"microscope/focus"
	"microscope/protocol"
)

// Publisher sends one encoded record to a topic
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// FocusRecord is the published form of a focus status report
type FocusRecord struct {
	RunID     string `json:"run_id"`
	State     string `json:"state"`
	Home      string `json:"home"`
	Current   int32  `json:"current"`
	Required  int32  `json:"required"`
	Energized bool   `json:"energized"`
	Contrast  uint32 `json:"contrast"`
	Best      uint32 `json:"best"`
	BestPos   int32  `json:"best_pos"`
	Frames    uint32 `json:"frames"`
}

// StatsRecord is the published form of a frame statistics report
type StatsRecord struct {
	RunID string `json:"run_id"`
	protocol.FrameStats
}

// LogRecord is the published form of a firmware log line
type LogRecord struct {
	RunID string `json:"run_id"`
	Text  string `json:"text"`
}

// Counters track what the monitor has seen
type Counters struct {
	Messages  uint64
	Focus     uint64
	Stats     uint64
	Logs      uint64
	Unknown   uint64
	BadFrames uint64
	PubErrors uint64
}

// Monitor turns a telemetry byte stream into printed lines and records
type Monitor struct {
	out     io.Writer
	pub     Publisher
	prefix  string
	runID   string
	decoder *protocol.Decoder
	last    protocol.FocusStatus
	counts  Counters
	verbose bool
}

// New creates a monitor printing to out. pub may be nil. Records are
// published under prefix/<run id>/{focus,stats,log}.
func New(out io.Writer, pub Publisher, prefix string) *Monitor {
	return &Monitor{
		out:     out,
		pub:     pub,
		prefix:  prefix,
		runID:   uuid.New().String(),
		decoder: protocol.NewDecoder(),
	}
}

// SetPublisher replaces the record publisher, nil disables publishing
func (m *Monitor) SetPublisher(pub Publisher) {
	m.pub = pub
}

// SetVerbose prints every focus report instead of state changes only
func (m *Monitor) SetVerbose(verbose bool) {
	m.verbose = verbose
}

// RunID identifies this monitor session in published topics
func (m *Monitor) RunID() string {
	return m.runID
}

// Counters returns the message counters
func (m *Monitor) Counters() Counters {
	c := m.counts
	c.BadFrames = uint64(m.decoder.Resyncs) + uint64(m.decoder.SeqGaps)
	return c
}

// Topic returns the topic a record kind is published on
func (m *Monitor) Topic(kind string) string {
	return m.prefix + "/" + m.runID + "/" + kind
}

// Run reads from r until ctx is cancelled or the stream ends
func (m *Monitor) Run(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			m.Handle(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("telemetry read: %w", err)
		}
	}
}

// Handle decodes received bytes and reports every complete message
func (m *Monitor) Handle(data []byte) {
	for _, msg := range m.decoder.Feed(data) {
		m.counts.Messages++
		if err := m.handleMessage(msg); err != nil {
			fmt.Fprintf(m.out, "bad message %d: %v\n", msg.ID, err)
		}
	}
}

func (m *Monitor) handleMessage(msg protocol.Message) error {
	switch msg.ID {
	case protocol.MsgFocusStatus:
		s, err := msg.FocusStatus()
		if err != nil {
			return err
		}
		m.counts.Focus++
		m.printFocus(s)
		return m.publish("focus", focusRecord(m.runID, s))

	case protocol.MsgFrameStats:
		s, err := msg.FrameStats()
		if err != nil {
			return err
		}
		m.counts.Stats++
		fmt.Fprintf(m.out, "frames=%d buffers=%d commit_fail=%d discarded=%d watchdog=%d gaps=%d starts=%d\n",
			s.Frames, s.Buffers, s.CommitFailures, s.Discarded, s.WatchdogResets, s.WindowGaps, s.Starts)
		return m.publish("stats", StatsRecord{RunID: m.runID, FrameStats: s})

	case protocol.MsgLog:
		text, err := msg.Log()
		if err != nil {
			return err
		}
		m.counts.Logs++
		fmt.Fprintf(m.out, "log: %s\n", text)
		return m.publish("log", LogRecord{RunID: m.runID, Text: text})

	default:
		m.counts.Unknown++
		return fmt.Errorf("unknown message id")
	}
}

func (m *Monitor) printFocus(s protocol.FocusStatus) {
	changed := s.State != m.last.State || s.Home != m.last.Home || m.counts.Focus == 1
	m.last = s
	if !changed && !m.verbose {
		return
	}
	fmt.Fprintf(m.out, "focus %s/%s pos=%d->%d contrast=%d best=%d@%d frames=%d\n",
		focus.State(s.State), focus.HomeState(s.Home), s.Current, s.Required,
		s.Contrast, s.Best, s.BestPos, s.Frames)
}

func (m *Monitor) publish(kind string, record interface{}) error {
	if m.pub == nil {
		return nil
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", kind, err)
	}
	if err := m.pub.Publish(m.Topic(kind), payload); err != nil {
		m.counts.PubErrors++
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

func focusRecord(runID string, s protocol.FocusStatus) FocusRecord {
	return FocusRecord{
		RunID:     runID,
		State:     focus.State(s.State).String(),
		Home:      focus.HomeState(s.Home).String(),
		Current:   s.Current,
		Required:  s.Required,
		Energized: s.Energized,
		Contrast:  s.Contrast,
		Best:      s.Best,
		BestPos:   s.BestPos,
		Frames:    s.Frames,
	}
}
