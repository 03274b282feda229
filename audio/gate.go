package audio

import (
	"sync"
	"time"
)

// gateEventBufferSize is the buffer size for the gate event channel.
const gateEventBufferSize = 16

// GateEvent reports a speech start or stop decision from a SpeechGate.
type GateEvent struct {
	Speaking  bool
	Energy    float64
	Timestamp time.Time
}

// SpeechGate is a single-channel energy gate used to decide locally when the
// user starts and stops talking. Start requires StartFrames consecutive
// samples above the threshold; stop requires Debounce of continuous quiet.
type SpeechGate struct {
	params GateParams
	now    func() time.Time

	mu         sync.Mutex
	speaking   bool
	loudFrames int
	quietSince time.Time

	events chan GateEvent
}

// NewSpeechGate creates a gate with the given parameters.
func NewSpeechGate(params GateParams, opts ...GateOption) (*SpeechGate, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	g := &SpeechGate{
		params: params,
		now:    time.Now,
		events: make(chan GateEvent, gateEventBufferSize),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// GateOption configures a SpeechGate.
type GateOption func(*SpeechGate)

// WithGateClock overrides the gate's time source.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *SpeechGate) {
		if now != nil {
			g.now = now
		}
	}
}

// Update feeds one energy sample and reports whether the gate considers the
// user to be speaking afterwards.
func (g *SpeechGate) Update(energy float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	loud := energy >= g.params.Threshold

	if !g.speaking {
		if !loud {
			g.loudFrames = 0
			return false
		}
		g.loudFrames++
		if g.loudFrames >= g.params.StartFrames {
			g.speaking = true
			g.quietSince = time.Time{}
			g.emit(GateEvent{Speaking: true, Energy: energy, Timestamp: now})
		}
		return g.speaking
	}

	if loud {
		g.quietSince = time.Time{}
		return true
	}
	if g.quietSince.IsZero() {
		g.quietSince = now
	}
	if now.Sub(g.quietSince) >= g.params.Debounce {
		g.speaking = false
		g.loudFrames = 0
		g.quietSince = time.Time{}
		g.emit(GateEvent{Speaking: false, Energy: energy, Timestamp: now})
	}
	return g.speaking
}

// emit sends without blocking; slow readers miss transitions rather than
// stalling the audio path.
func (g *SpeechGate) emit(ev GateEvent) {
	select {
	case g.events <- ev:
	default:
	}
}

// Events returns the channel of speech start/stop transitions.
func (g *SpeechGate) Events() <-chan GateEvent {
	return g.events
}

// Speaking reports the current gate state.
func (g *SpeechGate) Speaking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speaking
}

// Reset clears the gate state without emitting an event.
func (g *SpeechGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.speaking = false
	g.loudFrames = 0
	g.quietSince = time.Time{}
}
