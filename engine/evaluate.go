package engine

import (
	"strings"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

// Status is checklist progress over a transcript. Both lists follow profile
// order.
type Status struct {
	Completed []string
	Missing   []string
}

// NextItem returns the first missing item key, or "" when the checklist is complete.
func (s Status) NextItem() string {
	if len(s.Missing) == 0 {
		return ""
	}
	return s.Missing[0]
}

type line struct {
	actor transcript.Actor
	text  string
}

func lowered(segs []transcript.Segment) []line {
	out := make([]line, len(segs))
	for i, s := range segs {
		out[i] = line{actor: s.Actor, text: strings.ToLower(s.Text)}
	}
	return out
}

// Evaluate reports which checklist items the transcript has covered.
func (p *Profile) Evaluate(segs []transcript.Segment) Status {
	lines := lowered(segs)
	st := Status{Completed: []string{}, Missing: []string{}}
	for _, item := range p.Items {
		if item.matches(lines) {
			st.Completed = append(st.Completed, item.Key)
		} else {
			st.Missing = append(st.Missing, item.Key)
		}
	}
	return st
}

func (item ChecklistItem) matches(lines []line) bool {
	for _, r := range item.Rules {
		for _, l := range lines {
			if r.Actor != "" && r.Actor != l.actor {
				continue
			}
			if containsAny(l.text, r.Words) {
				return true
			}
		}
	}
	return false
}

// MeasureTone classifies the most recent customer lines. Negative words win
// over positive ones. It returns "" when the customer has not spoken.
func (p *Profile) MeasureTone(segs []transcript.Segment) guidance.Tone {
	var recent []string
	for _, l := range lowered(segs) {
		if l.actor == transcript.ActorCustomer {
			recent = append(recent, l.text)
		}
	}
	if len(recent) == 0 {
		return ""
	}
	if n := p.Tone.Window; n > 0 && len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	for _, text := range recent {
		if containsAny(text, p.Tone.Negative) {
			return guidance.ToneNegative
		}
	}
	for _, text := range recent {
		if containsAny(text, p.Tone.Positive) {
			return guidance.TonePositive
		}
	}
	return guidance.ToneNeutral
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}
