package focus

import (
	"microscope/config"
	"microscope/core"
)

// Window holds the three captured lines around the frame centre. Each row
// is LineLength samples plus one border sample on each side.
type Window struct {
	Previous []byte
	Center   []byte
	Next     []byte
}

// NewWindow allocates a window with rows of n bytes
func NewWindow(n int) Window {
	return Window{
		Previous: make([]byte, n),
		Center:   make([]byte, n),
		Next:     make([]byte, n),
	}
}

// CopyFrom copies all rows of src into w
func (w *Window) CopyFrom(src *Window) {
	copy(w.Previous, src.Previous)
	copy(w.Center, src.Center)
	copy(w.Next, src.Next)
}

// Tracker assembles the pixel window from capture buffers whose
// boundaries have no relation to image lines. It keeps a running byte
// cursor over all payloads since the start of the frame.
type Tracker struct {
	ranges   [3]config.ByteRange
	window   Window
	filled   [3]int
	cursor   int
	expected int
	valid    bool
	ready    bool
	gaps     uint32
}

// NewTracker creates a tracker for the given window geometry
func NewTracker(g config.Geometry) *Tracker {
	return &Tracker{
		ranges: g.Rows,
		window: NewWindow(g.CaptureBytes),
	}
}

func (t *Tracker) rows() [3][]byte {
	return [3][]byte{t.window.Previous, t.window.Center, t.window.Next}
}

// OnBufferProduced feeds one payload to the tracker. It returns true
// exactly once per frame, for the buffer that completes the window.
//
// Index 0 starts a new frame. A buffer whose index does not follow the
// previous one drops the window for the rest of the frame.
func (t *Tracker) OnBufferProduced(index int, payload []byte) bool {
	if index == 0 {
		t.cursor = 0
		t.filled = [3]int{}
		t.expected = 0
		t.valid = true
		t.ready = false
	}

	if index != t.expected {
		if t.valid {
			t.gaps++
			core.RecordEvent(core.EvtWindowGap, uint32(t.expected), uint32(index))
			core.DebugAsync("[FOCUS] window gap: expected " + core.Itoa(t.expected) +
				" got " + core.Itoa(index))
		}
		t.valid = false
	}
	t.expected = index + 1

	if !t.valid || t.ready {
		return false
	}

	start := t.cursor
	end := start + len(payload)
	rows := t.rows()
	for i, r := range t.ranges {
		begin := max(r.Begin, start)
		stop := min(r.End, end)
		if begin >= stop {
			continue
		}
		copy(rows[i][begin-r.Begin:], payload[begin-start:stop-start])
		t.filled[i] += stop - begin
	}
	t.cursor = end

	for i, r := range t.ranges {
		if t.filled[i] < r.Len() {
			return false
		}
	}
	t.ready = true
	return true
}

// OnFrameEnd checks the pipeline's buffer count for the finished frame
// against the buffers seen. A frame whose tail never reached the tracker
// counts as a gap. It returns false on a mismatch.
func (t *Tracker) OnFrameEnd(buffers int) bool {
	if buffers == t.expected {
		return true
	}
	if t.valid {
		t.gaps++
		core.RecordEvent(core.EvtWindowGap, uint32(t.expected), uint32(buffers))
		core.DebugAsync("[FOCUS] frame ended after " + core.Itoa(buffers) +
			" buffers, saw " + core.Itoa(t.expected))
	}
	t.valid = false
	return false
}

// Snapshot copies the assembled window into dst
func (t *Tracker) Snapshot(dst *Window) {
	dst.CopyFrom(&t.window)
}

// Ready reports whether the current frame's window is complete
func (t *Tracker) Ready() bool {
	return t.ready
}

// Gaps returns how many frames lost their window to a missing buffer
func (t *Tracker) Gaps() uint32 {
	return t.gaps
}
