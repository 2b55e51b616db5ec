package core

import "errors"

var (
	// ErrNotConfigured is returned when a peripheral is used before setup
	ErrNotConfigured = errors.New("peripheral not configured")
)

// PeripheralError reports a GPIO, SPI or I2C operation that kept failing
// after all retries.
type PeripheralError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PeripheralError) Error() string {
	return e.Op + " failed after " + Itoa(e.Attempts) + " attempts: " + e.Err.Error()
}

func (e *PeripheralError) Unwrap() error {
	return e.Err
}

// Retry runs fn up to attempts times and stops at the first success.
// Exhausted retries are logged and recorded in the trace ring.
func Retry(op string, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
	}
	RecordEvent(EvtPeripheral, uint32(attempts), 0)
	DebugAsync("[PERIPH] " + op + " error: " + err.Error())
	return &PeripheralError{Op: op, Attempts: attempts, Err: err}
}
