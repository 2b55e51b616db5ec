package core

// The RTOS tick on the capture SoC is one millisecond
const (
	TimerFreq = 1000
)

// TimerFromMS converts milliseconds to timer ticks
func TimerFromMS(ms uint32) uint32 {
	return (ms * TimerFreq) / 1000
}

// TimerToMS converts timer ticks to milliseconds
func TimerToMS(ticks uint32) uint32 {
	return (ticks * 1000) / TimerFreq
}
