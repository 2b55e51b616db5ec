package camera

import (
	"context"
	"io"
	"sync"

	"microscope/core"
	"microscope/focus"
	"microscope/protocol"
	"microscope/uvc"
)

// Reporter thread event flags
const (
	FlagReportStats = 1 << 0
	FlagReportFocus = 1 << 1

	reportMask = FlagReportStats | FlagReportFocus
)

// Reporter sends telemetry frames on the debug UART: frame statistics
// every few completed frames and the focus status on every state change.
// The capture and focus paths only raise flags; encoding and writing
// happen on the reporter thread.
type Reporter struct {
	mu      sync.Mutex
	enc     *protocol.Encoder
	events  *core.EventGroup
	every   uint32
	frames  uint32
	focus   focus.Status
	session *uvc.Session
	engine  *focus.Engine
	errors  uint32
}

// NewReporter creates a reporter writing to w. A nil writer disables
// output but the counters are still kept.
func NewReporter(w io.Writer, everyFrames int) *Reporter {
	r := &Reporter{events: core.NewEventGroup()}
	if w != nil {
		r.enc = protocol.NewEncoder(w)
	}
	if everyFrames > 0 {
		r.every = uint32(everyFrames)
	}
	return r
}

func (r *Reporter) attach(session *uvc.Session, engine *focus.Engine) {
	r.mu.Lock()
	r.session = session
	r.engine = engine
	r.mu.Unlock()
}

// FrameDone counts a completed frame. It runs in the DMA callback with
// the pipeline locked.
func (r *Reporter) FrameDone() {
	r.mu.Lock()
	r.frames++
	due := r.every > 0 && r.frames%r.every == 0
	r.mu.Unlock()

	if due {
		r.events.Set(FlagReportStats)
	}
}

// FocusChanged records a focus state change for the next report
func (r *Reporter) FocusChanged(s focus.Status) {
	r.mu.Lock()
	r.focus = s
	r.mu.Unlock()
	r.events.Set(FlagReportFocus)
}

// Log sends a text frame. It can serve as the core debug writer.
func (r *Reporter) Log(msg string) {
	if r.enc == nil {
		return
	}
	if err := r.enc.SendLog(msg); err != nil {
		r.mu.Lock()
		r.errors++
		r.mu.Unlock()
	}
}

// Run is the reporter thread. It returns when ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	for {
		flags, err := r.events.Wait(ctx, reportMask)
		if err != nil {
			return err
		}
		r.Process(flags)
	}
}

// Poll sends any pending reports without blocking
func (r *Reporter) Poll() {
	if flags := r.events.Get(reportMask); flags != 0 {
		r.Process(flags)
	}
}

// Process sends the reports named by flags
func (r *Reporter) Process(flags uint32) {
	if r.enc == nil {
		return
	}

	var err error
	if flags&FlagReportFocus != 0 {
		r.mu.Lock()
		s := r.focus
		r.mu.Unlock()
		err = r.enc.SendFocusStatus(FocusStatusOf(s))
	}
	if flags&FlagReportStats != 0 {
		if serr := r.enc.SendFrameStats(r.Stats()); serr != nil {
			err = serr
		}
	}
	if err != nil {
		r.mu.Lock()
		r.errors++
		r.mu.Unlock()
	}
}

// Stats collects the streaming counters for a report
func (r *Reporter) Stats() protocol.FrameStats {
	r.mu.Lock()
	session, engine, frames := r.session, r.engine, r.frames
	r.mu.Unlock()

	stats := protocol.FrameStats{Frames: frames}
	if session != nil {
		ps := session.Pipeline().Stats()
		stats.Buffers = ps.Buffers
		stats.CommitFailures = ps.CommitFailures
		stats.Discarded = ps.Discarded
		stats.WatchdogResets = session.Watchdog().Expired()
		stats.Starts = session.Starts()
	}
	if engine != nil {
		stats.WindowGaps = engine.Status().Gaps
	}
	return stats
}

// Errors returns the number of reports that could not be written
func (r *Reporter) Errors() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

// Sent returns the number of telemetry frames written
func (r *Reporter) Sent() uint32 {
	if r.enc == nil {
		return 0
	}
	return r.enc.Frames()
}

// FocusStatusOf converts an engine snapshot to its wire form
func FocusStatusOf(s focus.Status) protocol.FocusStatus {
	return protocol.FocusStatus{
		State:     uint8(s.State),
		Home:      uint8(s.Home),
		Current:   s.Motor.Current,
		Required:  s.Motor.Required,
		Energized: s.Energized,
		Contrast:  s.Contrast,
		Best:      s.Best,
		BestPos:   s.BestPos,
		Frames:    s.Frames,
	}
}
