package core

import "sync"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent captures a pipeline or focus event for post-mortem analysis
type TraceEvent struct {
	EventType uint8  // Event type code
	Clock     uint32 // Scheduler time at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtBufferCommit  = 1  // buffer committed: v1=index v2=count
	EvtCommitFailed  = 2  // commit rejected by the channel
	EvtFrameComplete = 3  // v1=frame number v2=buffers in frame
	EvtWatchdog      = 4  // frame watchdog expired
	EvtSocketSwitch  = 5  // v1=new socket
	EvtWrapUp        = 6  // v1=socket
	EvtWindowGap     = 7  // v1=expected index v2=received index
	EvtFocusState    = 8  // v1=focus state v2=home state
	EvtContrast      = 9  // v1=contrast v2=position
	EvtSessionStart  = 10 // v1=restart count
	EvtSessionStop   = 11
	EvtPeripheral    = 12 // peripheral retry exhausted: v1=attempts
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (set by target code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	traceMu       sync.Mutex
	traceRing     [TraceRingSize]TraceEvent
	traceRingHead uint8
	traceClock    func() uint32

	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function,
// normally the debug UART.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetTraceClock sets the time source stamped on trace events.
func SetTraceClock(clock func() uint32) {
	traceMu.Lock()
	traceClock = clock
	traceMu.Unlock()
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Blocks on the writer; DMA callbacks should use DebugAsync.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if !debugEnabled {
		return
	}
	if debugChan == nil {
		DebugPrintln(msg)
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RecordEvent captures an event in the trace ring buffer
func RecordEvent(eventType uint8, value1, value2 uint32) {
	traceMu.Lock()
	var clock uint32
	if traceClock != nil {
		clock = traceClock()
	}
	idx := traceRingHead
	traceRing[idx] = TraceEvent{
		EventType: eventType,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	traceRingHead = (idx + 1) % TraceRingSize
	traceMu.Unlock()
}

// TraceEvents returns the recorded events, oldest first.
func TraceEvents() []TraceEvent {
	traceMu.Lock()
	defer traceMu.Unlock()

	events := make([]TraceEvent, 0, TraceRingSize)
	start := traceRingHead
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := traceRing[(start+i)%TraceRingSize]
		if evt.EventType == 0 {
			continue
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns the short name printed for an event type.
func EventName(eventType uint8) string {
	switch eventType {
	case EvtBufferCommit:
		return "COMMIT"
	case EvtCommitFailed:
		return "COMMIT_FAIL!"
	case EvtFrameComplete:
		return "FRAME"
	case EvtWatchdog:
		return "WATCHDOG!"
	case EvtSocketSwitch:
		return "SOCKET"
	case EvtWrapUp:
		return "WRAPUP"
	case EvtWindowGap:
		return "WINDOW_GAP!"
	case EvtFocusState:
		return "FOCUS"
	case EvtContrast:
		return "CONTRAST"
	case EvtSessionStart:
		return "START"
	case EvtSessionStop:
		return "STOP"
	case EvtPeripheral:
		return "PERIPH_FAIL!"
	default:
		return "UNKNOWN"
	}
}

// DumpTraceRing outputs the trace ring buffer (call on watchdog reset or error)
func DumpTraceRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TRACE] === Trace Ring Dump ===")
	for _, evt := range TraceEvents() {
		debugPrintln("[TRACE] " + EventName(evt.EventType) +
			" clock=" + Utoa(evt.Clock) +
			" v1=" + Utoa(evt.Value1) +
			" v2=" + Utoa(evt.Value2))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearTraceRing clears the trace buffer
func ClearTraceRing() {
	traceMu.Lock()
	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceRingHead = 0
	traceMu.Unlock()
}
