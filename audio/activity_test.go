package audio

import (
	"testing"
	"time"
)

// manualClock is a settable time source for detector tests.
type manualClock struct {
	t time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time { return c.t }

func (c *manualClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDetector(t *testing.T) (*ActivityDetector, *manualClock) {
	t.Helper()
	clk := newManualClock()
	d, err := NewActivityDetector(DefaultActivityParams(), WithClock(clk.Now))
	if err != nil {
		t.Fatalf("NewActivityDetector() error = %v", err)
	}
	return d, clk
}

func TestSpeakingState_String(t *testing.T) {
	tests := []struct {
		state SpeakingState
		want  string
	}{
		{StateIdle, "idle"},
		{StateHuman, "human"},
		{StateAgent, "agent"},
		{SpeakingState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("SpeakingState(%d).String() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestActivityParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  ActivityParams
		wantErr bool
	}{
		{"defaults", DefaultActivityParams(), false},
		{"zero start", ActivityParams{StartThreshold: 0, StopThreshold: 0, Hold: 0}, true},
		{"stop above start", ActivityParams{StartThreshold: 0.1, StopThreshold: 0.2, Hold: time.Second}, true},
		{"negative hold", ActivityParams{StartThreshold: 0.1, StopThreshold: 0.05, Hold: -time.Second}, true},
		{"start above one", ActivityParams{StartThreshold: 1.5, StopThreshold: 0.05}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "Hold", Message: "must be non-negative"}
	if got := err.Error(); got != "invalid Hold: must be non-negative" {
		t.Errorf("Error() = %q", got)
	}
}

func TestActivityDetector_NotMonitoringIsIdle(t *testing.T) {
	d, _ := newTestDetector(t)

	if got := d.Update(0.9, 0.0, true); got != StateHuman {
		t.Fatalf("Update() = %v, want human", got)
	}
	if got := d.Update(0.9, 0.9, false); got != StateIdle {
		t.Errorf("Update(monitoring=false) = %v, want idle", got)
	}
	if got := d.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
}

func TestActivityDetector_NeverActiveIsIdle(t *testing.T) {
	d, _ := newTestDetector(t)

	if got := d.Update(0.0, 0.0, true); got != StateIdle {
		t.Errorf("Update(silence) = %v, want idle", got)
	}
	if got := d.Update(0.05, 0.05, true); got != StateIdle {
		t.Errorf("Update(between thresholds, idle) = %v, want idle", got)
	}
}

func TestActivityDetector_HumanHoldsThenReleases(t *testing.T) {
	d, clk := newTestDetector(t)

	if got := d.Update(0.2, 0.0, true); got != StateHuman {
		t.Fatalf("Update() = %v, want human", got)
	}

	// Falling energy within the hold window keeps the floor.
	clk.Advance(200 * time.Millisecond)
	if got := d.Update(0.0, 0.0, true); got != StateHuman {
		t.Errorf("within hold = %v, want human", got)
	}

	clk.Advance(300 * time.Millisecond)
	if got := d.Update(0.0, 0.0, true); got != StateIdle {
		t.Errorf("after hold = %v, want idle", got)
	}
}

func TestActivityDetector_StopThresholdKeepsWinner(t *testing.T) {
	d, clk := newTestDetector(t)

	d.Update(0.0, 0.2, true)
	for i := 0; i < 10; i++ {
		clk.Advance(200 * time.Millisecond)
		// 0.05 is below start but above stop: the current winner stays active.
		if got := d.Update(0.0, 0.05, true); got != StateAgent {
			t.Fatalf("step %d = %v, want agent", i, got)
		}
	}
}

func TestActivityDetector_HoldExactlyAtBoundary(t *testing.T) {
	d, clk := newTestDetector(t)

	d.Update(0.2, 0.0, true)
	clk.Advance(DefaultHold)
	if got := d.Update(0.0, 0.0, true); got != StateHuman {
		t.Errorf("at hold boundary = %v, want human", got)
	}
}

func TestActivityDetector_BothHoldingLouderWins(t *testing.T) {
	d, _ := newTestDetector(t)

	if got := d.Update(0.3, 0.2, true); got != StateHuman {
		t.Errorf("human louder = %v, want human", got)
	}
	if got := d.Update(0.2, 0.3, true); got != StateAgent {
		t.Errorf("agent louder = %v, want agent", got)
	}
}

func TestActivityDetector_TieKeepsPreviousWinner(t *testing.T) {
	d, _ := newTestDetector(t)

	d.Update(0.0, 0.3, true)
	if got := d.Update(0.3, 0.3, true); got != StateAgent {
		t.Errorf("tie after agent = %v, want agent", got)
	}

	d.Reset()
	if got := d.Update(0.3, 0.3, true); got != StateHuman {
		t.Errorf("tie from idle = %v, want human", got)
	}
}

func TestActivityDetector_NeverBothSpeaking(t *testing.T) {
	d, clk := newTestDetector(t)

	levels := []float64{0, 0.03, 0.05, 0.08, 0.1, 0.5, 1}
	for _, h := range levels {
		for _, a := range levels {
			clk.Advance(50 * time.Millisecond)
			got := d.Update(h, a, true)
			if got != StateIdle && got != StateHuman && got != StateAgent {
				t.Fatalf("Update(%v, %v) returned invalid state %v", h, a, got)
			}
		}
	}
}
