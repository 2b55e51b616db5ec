package sim

import (
	"sync"

	"microscope/uvc"
)

// HostStats counts what the host saw on the video endpoint
type HostStats struct {
	Transfers   uint32
	Frames      uint32
	StillFrames uint32
	BadHeaders  uint32
	Dropped     uint32 // frames abandoned on a frame ID change without EOF
	FIDRepeats  uint32 // frames that did not toggle the frame ID
}

// Host reassembles frames from bulk payload transfers the way a UVC host
// driver does
type Host struct {
	mu      sync.Mutex
	current []byte
	inFrame bool
	curFID  uint8
	lastFID int
	still   bool
	last    []byte
	stats   HostStats
}

// NewHost creates a host that has not seen a frame
func NewHost() *Host {
	return &Host{lastFID: -1}
}

// Receive handles one payload transfer
func (h *Host) Receive(transfer []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.Transfers++
	hdr, err := uvc.ParseHeader(transfer)
	if err != nil {
		h.stats.BadHeaders++
		return
	}

	if h.inFrame && hdr.FrameID != h.curFID {
		h.stats.Dropped++
		h.inFrame = false
		h.current = h.current[:0]
	}
	if !h.inFrame {
		if int(hdr.FrameID) == h.lastFID {
			h.stats.FIDRepeats++
		}
		h.inFrame = true
		h.curFID = hdr.FrameID
		h.still = false
	}

	h.current = append(h.current, transfer[hdr.Length:]...)
	if hdr.Still {
		h.still = true
	}

	if hdr.EndOfFrame {
		h.stats.Frames++
		if h.still {
			h.stats.StillFrames++
		}
		h.last = append(h.last[:0], h.current...)
		h.current = h.current[:0]
		h.lastFID = int(h.curFID)
		h.inFrame = false
	}
}

// LastFrame returns a copy of the most recent complete frame
func (h *Host) LastFrame() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.last...)
}

// Stats returns the host counters
func (h *Host) Stats() HostStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
