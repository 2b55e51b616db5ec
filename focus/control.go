package focus

// State is the autofocus stage
type State uint8

const (
	StateIdle State = iota
	StateHome
	StateOut
	StateHold
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHome:
		return "HOME"
	case StateOut:
		return "OUT"
	case StateHold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// EventKind identifies a focus loop input
type EventKind uint8

const (
	EventAbort EventKind = iota
	EventHome
	EventPixels
	EventFrame
)

// Event is one focus loop input. Pixels events carry the window captured
// during the frame.
type Event struct {
	Kind   EventKind
	Window *Window
}

// Effects are the motor driver changes requested by a transition
type Effects struct {
	EnableMotor  bool
	DisableMotor bool
}

// Sweep holds the focus range and the parameters of the contrast search
type Sweep struct {
	Limits     Limits
	StepMax    int32
	Hysteresis uint32
	StartGreen bool
}

// Loop is the focus control state. Handle is a pure transition, the
// engine owns the only copy.
type Loop struct {
	State       State
	Home        HomeState
	Contrast    uint32 // Latest contrast score
	ContrastPos int32  // Lens position when the scored pixels were captured
	HaveSample  bool
	Best        uint32
	BestPos     int32
	HaveBest    bool
}

func (l *Loop) resetBest() {
	l.Best = 0
	l.BestPos = 0
	l.HaveBest = false
}

// Handle applies one event. For Frame events the motor has already taken
// its step for this frame; switchActive is the home switch reading after
// that step.
func (l Loop) Handle(ev Event, pos Position, switchActive bool, sweep Sweep) (Loop, Position, Effects) {
	var fx Effects

	switch ev.Kind {
	case EventAbort:
		l.State = StateIdle
		l.Home = HomeIdle
		pos.Required = pos.Current
		fx.DisableMotor = true

	case EventHome:
		if l.State != StateHome {
			l.Contrast = 0
			l.HaveSample = false
			l.resetBest()
			l.State = StateHome
			l.Home = HomeStart
		}

	case EventPixels:
		if l.State == StateHome || ev.Window == nil {
			break
		}
		l.Contrast = ComputeContrast(*ev.Window, sweep.StartGreen)
		l.ContrastPos = pos.Current
		l.HaveSample = true
		if l.State == StateOut && (!l.HaveBest || l.Contrast > l.Best+sweep.Hysteresis) {
			l.Best = l.Contrast
			l.BestPos = pos.Current
			l.HaveBest = true
		}

	case EventFrame:
		switch l.State {
		case StateHome:
			var action HomeAction
			l.Home, pos, action = HomeStep(l.Home, pos, switchActive, sweep.Limits)
			if action == HomeEnableMotor {
				fx.EnableMotor = true
			}
			switch l.Home {
			case HomeSuccess:
				l.State = StateOut
				pos.Required = sweep.StepMax
				l.resetBest()
			case HomeFailed:
				l.State = StateIdle
				fx.DisableMotor = true
			}

		case StateOut:
			if pos.AtTarget() {
				if l.HaveBest {
					pos.Required = l.BestPos
				}
				l.State = StateHold
			}
		}
	}

	return l, pos, fx
}
