package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

// ErrEmptyGuidance is returned when a generator produces no text.
var ErrEmptyGuidance = errors.New("generator returned empty guidance")

// Input is everything a generator may use to write guidance.
type Input struct {
	Profile  *Profile
	Status   Status
	Tone     guidance.Tone
	Segments []transcript.Segment
}

// Generator writes guidance text for a transcript.
type Generator interface {
	// Name identifies the generator in logs and metrics.
	Name() string
	Generate(ctx context.Context, in Input) (string, error)
}

// TemplateGenerator writes deterministic guidance from the profile's coach
// and prompt templates for the first missing checklist item.
type TemplateGenerator struct{}

// Name returns "template".
func (TemplateGenerator) Name() string { return "template" }

// Generate renders a Checklist/Coach/Prompt block.
func (TemplateGenerator) Generate(_ context.Context, in Input) (string, error) {
	p := guidance.Parsed{
		Checklist: "All items complete",
		Coach:     "Wrap up warmly and thank them for their time.",
		Prompt:    "Thank you so much for sharing all of this with me today.",
	}
	if key := in.Status.NextItem(); key != "" {
		item, ok := in.Profile.Item(key)
		if !ok {
			return "", fmt.Errorf("unknown checklist item %q", key)
		}
		p = guidance.Parsed{Checklist: in.Profile.Label(key), Coach: item.Coach, Prompt: item.Prompt}
	}
	if in.Tone == guidance.ToneNegative {
		p.Coach = "The customer sounds unhappy, so acknowledge that first. " + p.Coach
	}
	return "Checklist: " + p.Checklist + "\nCoach: " + p.Coach + "\nPrompt: " + p.Prompt, nil
}

// transcriptWindow is how many recent lines an LLM prompt includes.
const transcriptWindow = 40

// buildUserPrompt renders the checklist status and recent transcript.
func buildUserPrompt(in Input) string {
	completed := labels(in.Profile, in.Status.Completed)
	missing := labels(in.Profile, in.Status.Missing)
	if completed == "" {
		completed = "none yet"
	}
	if missing == "" {
		missing = "all complete"
	}
	tone := string(in.Tone)
	if tone == "" {
		tone = string(guidance.ToneNeutral)
	}

	status := []string{
		"Completed checklist items: " + completed,
		"Missing checklist items: " + missing,
		"Observed customer tone: " + tone,
	}
	if item, ok := in.Profile.Item(in.Status.NextItem()); ok {
		status = append(status, fmt.Sprintf("Priority coaching focus: Coach hint -> %s | Prompt idea -> %s", item.Coach, item.Prompt))
	}

	var lines []string
	for _, seg := range transcript.Window(in.Segments, transcriptWindow) {
		lines = append(lines, fmt.Sprintf("%s %s: %s",
			seg.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), strings.ToUpper(string(seg.Actor)), seg.Text))
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		text = "(no transcript yet)"
	}

	return strings.Join([]string{
		"You receive the current survey transcript and checklist progress.",
		"Checklist reference:\n" + strings.TrimSpace(in.Profile.ChecklistText),
		"Status summary:\n" + strings.Join(status, "\n"),
		"Transcript (most recent entries last):\n" + text,
	}, "\n\n")
}

func labels(p *Profile, keys []string) string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = p.Label(k)
	}
	return strings.Join(out, ", ")
}
