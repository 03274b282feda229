package audio

import "time"

// Default detector parameter values.
const (
	DefaultStartThreshold = 0.08
	DefaultStopThreshold  = 0.04
	DefaultHold           = 450 * time.Millisecond

	DefaultGateThreshold   = 0.04
	DefaultGateStartFrames = 3
	DefaultGateDebounce    = 450 * time.Millisecond
)

// ActivityParams configures the two-channel ActivityDetector.
type ActivityParams struct {
	// StartThreshold is the energy (0.0-1.0) at which an idle channel becomes active.
	StartThreshold float64 `yaml:"start_threshold" mapstructure:"start_threshold"`

	// StopThreshold is the lower energy that keeps the current winner active.
	// Must not exceed StartThreshold.
	StopThreshold float64 `yaml:"stop_threshold" mapstructure:"stop_threshold"`

	// Hold is how long a channel keeps the floor after it was last strongly active.
	Hold time.Duration `yaml:"hold" mapstructure:"hold"`
}

// DefaultActivityParams returns the tuned defaults for speaking indicators.
func DefaultActivityParams() ActivityParams {
	return ActivityParams{
		StartThreshold: DefaultStartThreshold,
		StopThreshold:  DefaultStopThreshold,
		Hold:           DefaultHold,
	}
}

// Validate checks that the parameters are within acceptable ranges.
func (p ActivityParams) Validate() error {
	if p.StartThreshold <= 0 || p.StartThreshold > 1 {
		return &ValidationError{Field: "StartThreshold", Message: "must be in (0.0, 1.0]"}
	}
	if p.StopThreshold < 0 || p.StopThreshold > p.StartThreshold {
		return &ValidationError{Field: "StopThreshold", Message: "must be between 0.0 and StartThreshold"}
	}
	if p.Hold < 0 {
		return &ValidationError{Field: "Hold", Message: "must be non-negative"}
	}
	return nil
}

// GateParams configures the single-channel SpeechGate.
type GateParams struct {
	// Threshold is the energy (0.0-1.0) counted as speech.
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`

	// StartFrames is the number of consecutive samples above Threshold needed to start.
	StartFrames int `yaml:"start_frames" mapstructure:"start_frames"`

	// Debounce is the continuous silence needed before speech is declared stopped.
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// DefaultGateParams returns defaults for local microphone gating.
func DefaultGateParams() GateParams {
	return GateParams{
		Threshold:   DefaultGateThreshold,
		StartFrames: DefaultGateStartFrames,
		Debounce:    DefaultGateDebounce,
	}
}

// Validate checks that the parameters are within acceptable ranges.
func (p GateParams) Validate() error {
	if p.Threshold <= 0 || p.Threshold > 1 {
		return &ValidationError{Field: "Threshold", Message: "must be in (0.0, 1.0]"}
	}
	if p.StartFrames < 1 {
		return &ValidationError{Field: "StartFrames", Message: "must be at least 1"}
	}
	if p.Debounce < 0 {
		return &ValidationError{Field: "Debounce", Message: "must be non-negative"}
	}
	return nil
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}
