package focus

// HomeState is the homing sequence state
type HomeState uint8

const (
	HomeIdle HomeState = iota
	HomeStart
	HomeWaitHigh
	HomeWaitN
	HomeWaitLow
	HomeFailed
	HomeSuccess
)

func (s HomeState) String() string {
	switch s {
	case HomeIdle:
		return "IDLE"
	case HomeStart:
		return "START"
	case HomeWaitHigh:
		return "WAIT_HIGH"
	case HomeWaitN:
		return "WAIT_N"
	case HomeWaitLow:
		return "WAIT_LOW"
	case HomeFailed:
		return "FAILED"
	case HomeSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether homing has finished or is not running
func (s HomeState) Terminal() bool {
	return s == HomeIdle || s == HomeFailed || s == HomeSuccess
}

// Position holds the inferred and requested motor step counts
type Position struct {
	Current  int32
	Required int32
}

// AtTarget reports whether no more steps are needed
func (p Position) AtTarget() bool {
	return p.Current == p.Required
}

// Limits are the step distances of the homing sequence
type Limits struct {
	Top    int32 // Travel off the switch before giving up
	Bottom int32 // Travel toward the switch before giving up
	N      int32 // Overshoot past the switch edge
}

// HomeAction is the side effect requested by a homing transition
type HomeAction uint8

const (
	HomeNoAction HomeAction = iota
	HomeEnableMotor
)

// HomeStep advances the homing sequence by one step event. It is called
// after the motor has stepped, with the current switch reading.
//
// The lens is driven down toward the switch from an assumed BottomLimit,
// overshoots by N steps once the switch fires, then backs off until the
// switch releases. That edge becomes position 0.
func HomeStep(state HomeState, pos Position, switchActive bool, limits Limits) (HomeState, Position, HomeAction) {
	switch state {
	case HomeStart:
		return HomeWaitHigh, Position{Current: limits.Bottom, Required: 0}, HomeEnableMotor

	case HomeWaitHigh:
		if switchActive {
			return HomeWaitN, Position{Current: limits.N, Required: 0}, HomeNoAction
		}
		if pos.AtTarget() {
			return HomeFailed, pos, HomeNoAction
		}

	case HomeWaitN:
		if pos.AtTarget() {
			return HomeWaitLow, Position{Current: 0, Required: limits.Top}, HomeNoAction
		}

	case HomeWaitLow:
		if !switchActive {
			return HomeSuccess, Position{}, HomeNoAction
		}
		if pos.AtTarget() {
			return HomeFailed, pos, HomeNoAction
		}
	}

	return state, pos, HomeNoAction
}
