// Package transcript holds conversation transcript segments and a bounded history buffer.
package transcript

import (
	"errors"
	"strings"
	"time"
)

// Actor identifies who spoke a segment.
type Actor string

// Actors.
const (
	ActorAgent    Actor = "agent"
	ActorCustomer Actor = "customer"
)

// Valid reports whether a is a known actor.
func (a Actor) Valid() bool {
	return a == ActorAgent || a == ActorCustomer
}

// ErrEmptyText is returned when a segment would carry no text.
var ErrEmptyText = errors.New("transcript segment text is empty")

// ErrUnknownActor is returned for an actor other than agent or customer.
var ErrUnknownActor = errors.New("transcript segment actor is unknown")

// Segment is one completed spoken turn. Segments are values and are never
// modified after creation.
type Segment struct {
	Actor     Actor     `json:"actor"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSegment trims text and validates the actor.
func NewSegment(actor Actor, text string, ts time.Time) (Segment, error) {
	if !actor.Valid() {
		return Segment{}, ErrUnknownActor
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Segment{}, ErrEmptyText
	}
	return Segment{Actor: actor, Text: text, Timestamp: ts}, nil
}
