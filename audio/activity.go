package audio

import (
	"sync"
	"time"
)

// SpeakingState is who currently holds the floor according to audio energy.
type SpeakingState int

const (
	// StateIdle indicates nobody is speaking.
	StateIdle SpeakingState = iota
	// StateHuman indicates the human is speaking.
	StateHuman
	// StateAgent indicates the agent is speaking.
	StateAgent
)

// String returns a human-readable representation of the speaking state.
func (s SpeakingState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHuman:
		return "human"
	case StateAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// channel indexes into the detector's per-channel arrays.
const (
	chanHuman = iota
	chanAgent
	numChannels
)

// ActivityDetector classifies two energy channels (human, agent) into a
// SpeakingState using asymmetric start/stop thresholds and a hold window.
type ActivityDetector struct {
	params ActivityParams
	now    func() time.Time

	mu         sync.Mutex
	state      SpeakingState
	lastStrong [numChannels]time.Time
}

// ActivityOption configures an ActivityDetector.
type ActivityOption func(*ActivityDetector)

// WithClock overrides the detector's time source.
func WithClock(now func() time.Time) ActivityOption {
	return func(d *ActivityDetector) {
		if now != nil {
			d.now = now
		}
	}
}

// NewActivityDetector creates a detector with the given parameters.
func NewActivityDetector(params ActivityParams, opts ...ActivityOption) (*ActivityDetector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	d := &ActivityDetector{
		params: params,
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Update feeds one pair of energy samples and returns the resulting state.
// When monitoring is false the detector resets to StateIdle.
func (d *ActivityDetector) Update(human, agent float64, monitoring bool) SpeakingState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !monitoring {
		d.resetLocked()
		return d.state
	}

	now := d.now()
	energy := [numChannels]float64{chanHuman: human, chanAgent: agent}
	winner := [numChannels]SpeakingState{chanHuman: StateHuman, chanAgent: StateAgent}

	var holding [numChannels]bool
	for ch := 0; ch < numChannels; ch++ {
		if d.strongly(energy[ch], d.state == winner[ch]) {
			d.lastStrong[ch] = now
		}
		holding[ch] = !d.lastStrong[ch].IsZero() && now.Sub(d.lastStrong[ch]) <= d.params.Hold
	}

	d.state = resolve(holding, energy, d.state)
	return d.state
}

// strongly reports whether a channel is strongly active this sample.
func (d *ActivityDetector) strongly(energy float64, wasWinner bool) bool {
	if energy >= d.params.StartThreshold {
		return true
	}
	return wasWinner && energy >= d.params.StopThreshold
}

// resolve picks the next state from the holding flags. It is a pure function
// so every input combination maps to exactly one state.
func resolve(holding [numChannels]bool, energy [numChannels]float64, prev SpeakingState) SpeakingState {
	switch {
	case holding[chanHuman] && holding[chanAgent]:
		switch {
		case energy[chanHuman] > energy[chanAgent]:
			return StateHuman
		case energy[chanAgent] > energy[chanHuman]:
			return StateAgent
		case prev == StateAgent:
			return StateAgent
		default:
			return StateHuman
		}
	case holding[chanHuman]:
		return StateHuman
	case holding[chanAgent]:
		return StateAgent
	default:
		return StateIdle
	}
}

// State returns the last computed state.
func (d *ActivityDetector) State() SpeakingState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Reset returns the detector to StateIdle and clears hold timestamps.
func (d *ActivityDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *ActivityDetector) resetLocked() {
	d.state = StateIdle
	d.lastStrong = [numChannels]time.Time{}
}
