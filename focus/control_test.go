package focus

import "testing"

var testSweep = Sweep{
	Limits:     testLimits,
	StepMax:    60,
	Hysteresis: 200,
}

// stripes builds a window of vertical bars whose contrast grows with amp
func stripes(amp uint16) *Window {
	row := make([]uint16, 24)
	for i := range row {
		if (i/2)%2 == 1 {
			row[i] = 1000 + amp
		} else {
			row[i] = 1000
		}
	}
	w := windowOf(row, row, row)
	return &w
}

func TestAbortFromEveryState(t *testing.T) {
	tests := []struct {
		name string
		loop Loop
	}{
		{"idle", Loop{}},
		{"homing", Loop{State: StateHome, Home: HomeWaitN}},
		{"sweeping", Loop{State: StateOut, Home: HomeSuccess, HaveBest: true, Best: 900}},
		{"holding", Loop{State: StateHold, Home: HomeSuccess}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop, pos, fx := tt.loop.Handle(Event{Kind: EventAbort}, Position{Current: 17, Required: 42}, false, testSweep)
			if loop.State != StateIdle || loop.Home != HomeIdle {
				t.Errorf("Expected IDLE/IDLE, got %v/%v", loop.State, loop.Home)
			}
			if pos.Current != 17 || pos.Required != 17 {
				t.Errorf("Abort should hold position, got %+v", pos)
			}
			if !fx.DisableMotor || fx.EnableMotor {
				t.Errorf("Abort should only disable the motor, got %+v", fx)
			}
		})
	}
}

func TestHomeEventStartsHoming(t *testing.T) {
	loop := Loop{State: StateHold, Home: HomeSuccess, Contrast: 5, HaveSample: true, Best: 10, BestPos: 3, HaveBest: true}

	loop, pos, fx := loop.Handle(Event{Kind: EventHome}, Position{Current: 3, Required: 3}, false, testSweep)
	if loop.State != StateHome || loop.Home != HomeStart {
		t.Fatalf("Expected HOME/START, got %v/%v", loop.State, loop.Home)
	}
	if loop.HaveBest || loop.HaveSample {
		t.Errorf("Home should clear the focus samples: %+v", loop)
	}
	if fx != (Effects{}) {
		t.Errorf("Home event should not touch the motor, got %+v", fx)
	}

	// first frame leaves START and energises the driver
	loop, pos, fx = loop.Handle(Event{Kind: EventFrame}, pos, false, testSweep)
	if loop.Home != HomeWaitHigh || !fx.EnableMotor {
		t.Errorf("Expected WAIT_HIGH with motor enable, got %v %+v", loop.Home, fx)
	}
	if pos.Current != testLimits.Bottom || pos.Required != 0 {
		t.Errorf("Unexpected position after START: %+v", pos)
	}

	// a second Home while homing does not restart the sequence
	again, _, _ := loop.Handle(Event{Kind: EventHome}, pos, false, testSweep)
	if again.Home != HomeWaitHigh {
		t.Errorf("Home while homing restarted the sequence: %v", again.Home)
	}
}

func TestHomingOutcome(t *testing.T) {
	// WAIT_LOW with the switch released finishes homing
	loop := Loop{State: StateHome, Home: HomeWaitLow}
	loop, pos, _ := loop.Handle(Event{Kind: EventFrame}, Position{Current: 4, Required: 120}, false, testSweep)
	if loop.State != StateOut || loop.Home != HomeSuccess {
		t.Fatalf("Expected OUT/SUCCESS, got %v/%v", loop.State, loop.Home)
	}
	if pos.Current != 0 || pos.Required != testSweep.StepMax {
		t.Errorf("Sweep should start from 0 toward %d, got %+v", testSweep.StepMax, pos)
	}

	// WAIT_HIGH reaching its target without the switch fails
	loop = Loop{State: StateHome, Home: HomeWaitHigh}
	loop, _, fx := loop.Handle(Event{Kind: EventFrame}, Position{Current: 0, Required: 0}, false, testSweep)
	if loop.State != StateIdle || loop.Home != HomeFailed {
		t.Errorf("Expected IDLE/FAILED, got %v/%v", loop.State, loop.Home)
	}
	if !fx.DisableMotor {
		t.Error("Failed homing should de-energise the motor")
	}
}

func TestPixelsIgnoredWhileHoming(t *testing.T) {
	loop := Loop{State: StateHome, Home: HomeWaitHigh}
	next, _, _ := loop.Handle(Event{Kind: EventPixels, Window: stripes(500)}, Position{Current: 50}, false, testSweep)
	if next.HaveSample || next.HaveBest {
		t.Errorf("Pixels while homing should be ignored: %+v", next)
	}
}

func TestSweepTracksBestWithHysteresis(t *testing.T) {
	low := ComputeContrast(*stripes(100), false)
	near := ComputeContrast(*stripes(110), false)
	high := ComputeContrast(*stripes(400), false)
	if near <= low || near > low+testSweep.Hysteresis || high <= low+testSweep.Hysteresis {
		t.Fatalf("Test windows out of range: low=%d near=%d high=%d", low, near, high)
	}

	loop := Loop{State: StateOut, Home: HomeSuccess}
	pos := Position{Current: 5, Required: 60}

	// first sample is always taken
	loop, _, _ = loop.Handle(Event{Kind: EventPixels, Window: stripes(100)}, pos, false, testSweep)
	if !loop.HaveBest || loop.Best != low || loop.BestPos != 5 {
		t.Fatalf("First sample not recorded: %+v", loop)
	}

	// within hysteresis, keep the earlier position
	pos.Current = 6
	loop, _, _ = loop.Handle(Event{Kind: EventPixels, Window: stripes(110)}, pos, false, testSweep)
	if loop.BestPos != 5 || loop.Contrast != near {
		t.Errorf("Small improvement replaced best: %+v", loop)
	}

	// clear improvement
	pos.Current = 9
	loop, _, _ = loop.Handle(Event{Kind: EventPixels, Window: stripes(400)}, pos, false, testSweep)
	if loop.BestPos != 9 || loop.Best != high {
		t.Errorf("Expected best %d at 9, got %d at %d", high, loop.Best, loop.BestPos)
	}

	// worse samples never replace it
	pos.Current = 12
	loop, _, _ = loop.Handle(Event{Kind: EventPixels, Window: stripes(0)}, pos, false, testSweep)
	if loop.BestPos != 9 || loop.ContrastPos != 12 {
		t.Errorf("Worse sample changed best: %+v", loop)
	}

	// sweep end returns to the best position and holds
	loop, pos, _ = loop.Handle(Event{Kind: EventFrame}, Position{Current: 60, Required: 60}, false, testSweep)
	if loop.State != StateHold {
		t.Fatalf("Expected HOLD, got %v", loop.State)
	}
	if pos.Required != 9 {
		t.Errorf("Expected return to 9, got %+v", pos)
	}
}

func TestSweepEndWithoutSamples(t *testing.T) {
	loop := Loop{State: StateOut, Home: HomeSuccess}
	loop, pos, _ := loop.Handle(Event{Kind: EventFrame}, Position{Current: 60, Required: 60}, false, testSweep)
	if loop.State != StateHold || pos.Required != 60 {
		t.Errorf("Expected HOLD in place, got %v %+v", loop.State, pos)
	}
}

func TestHoldIgnoresFrames(t *testing.T) {
	loop := Loop{State: StateHold, Home: HomeSuccess, BestPos: 9, HaveBest: true}
	next, pos, fx := loop.Handle(Event{Kind: EventFrame}, Position{Current: 9, Required: 9}, true, testSweep)
	if next != loop || pos.Required != 9 || fx != (Effects{}) {
		t.Errorf("HOLD changed on a frame: %+v %+v %+v", next, pos, fx)
	}
}
