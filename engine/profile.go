// Package engine turns a survey transcript into moderator guidance: it
// evaluates checklist progress, measures customer tone and asks a Generator
// for the coaching text.
package engine

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

//go:embed profiles/default.yaml
var defaultProfileYAML []byte

// supportedProfileVersions is the range of profile schema versions this
// package understands.
const supportedProfileVersions = ">= 1.0.0, < 2.0.0"

const defaultToneWindow = 4

// Profile describes one survey: the agent persona, the checklist and the
// keyword sets used to track it.
type Profile struct {
	Version               string          `yaml:"version"`
	Name                  string          `yaml:"name"`
	Persona               string          `yaml:"persona"`
	ChecklistText         string          `yaml:"checklist_text"`
	ModeratorInstructions string          `yaml:"moderator_instructions"`
	Items                 []ChecklistItem `yaml:"items"`
	Tone                  ToneWords       `yaml:"tone"`
}

// ChecklistItem is one survey step. The item is complete once any rule
// matches a transcript line.
type ChecklistItem struct {
	Key    string `yaml:"key"`
	Label  string `yaml:"label"`
	Coach  string `yaml:"coach"`
	Prompt string `yaml:"prompt"`
	Rules  []Rule `yaml:"rules"`
}

// Rule matches lines spoken by Actor (any actor when empty) that contain one
// of Words as a case-insensitive substring.
type Rule struct {
	Actor transcript.Actor `yaml:"actor,omitempty"`
	Words []string         `yaml:"words"`
}

// ToneWords drives tone measurement over the most recent customer lines.
type ToneWords struct {
	Window   int      `yaml:"window"`
	Negative []string `yaml:"negative"`
	Positive []string `yaml:"positive"`
}

// ProfileError reports an invalid profile field.
type ProfileError struct {
	Field   string
	Message string
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("invalid profile: %s: %s", e.Field, e.Message)
}

// DefaultProfile returns the built-in customer satisfaction survey.
func DefaultProfile() *Profile {
	p, err := ParseProfile(defaultProfileYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in profile is invalid: %v", err))
	}
	return p
}

// LoadProfile reads and validates a profile file. An empty path returns the
// built-in profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Tone.Window <= 0 {
		p.Tone.Window = defaultToneWindow
	}
	for i := range p.Items {
		for j := range p.Items[i].Rules {
			words := p.Items[i].Rules[j].Words
			for k := range words {
				words[k] = strings.ToLower(words[k])
			}
		}
	}
	p.Tone.Negative = lowerAll(p.Tone.Negative)
	p.Tone.Positive = lowerAll(p.Tone.Positive)
	return &p, nil
}

// Validate checks the version range and that every item is usable.
func (p *Profile) Validate() error {
	if p.Version == "" {
		return &ProfileError{Field: "version", Message: "is required"}
	}
	v, err := semver.StrictNewVersion(strings.TrimPrefix(p.Version, "v"))
	if err != nil {
		return &ProfileError{Field: "version", Message: fmt.Sprintf("invalid semantic version: %v", err)}
	}
	constraint, err := semver.NewConstraint(supportedProfileVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return &ProfileError{Field: "version", Message: fmt.Sprintf("%s is not in %s", p.Version, supportedProfileVersions)}
	}

	if len(p.Items) == 0 {
		return &ProfileError{Field: "items", Message: "at least one checklist item is required"}
	}
	seen := make(map[string]bool, len(p.Items))
	for i, item := range p.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.Key == "" {
			return &ProfileError{Field: field + ".key", Message: "is required"}
		}
		if seen[item.Key] {
			return &ProfileError{Field: field + ".key", Message: fmt.Sprintf("duplicate key %q", item.Key)}
		}
		seen[item.Key] = true
		if len(item.Rules) == 0 {
			return &ProfileError{Field: field + ".rules", Message: "at least one rule is required"}
		}
		for j, r := range item.Rules {
			if r.Actor != "" && !r.Actor.Valid() {
				return &ProfileError{Field: fmt.Sprintf("%s.rules[%d].actor", field, j), Message: fmt.Sprintf("unknown actor %q", r.Actor)}
			}
			if len(r.Words) == 0 {
				return &ProfileError{Field: fmt.Sprintf("%s.rules[%d].words", field, j), Message: "is empty"}
			}
		}
	}
	return nil
}

// Item returns the checklist item with key.
func (p *Profile) Item(key string) (ChecklistItem, bool) {
	for _, item := range p.Items {
		if item.Key == key {
			return item, true
		}
	}
	return ChecklistItem{}, false
}

// Keys returns the checklist keys in order.
func (p *Profile) Keys() []string {
	keys := make([]string, len(p.Items))
	for i, item := range p.Items {
		keys[i] = item.Key
	}
	return keys
}

// Label returns the display label for key, falling back to the key itself.
func (p *Profile) Label(key string) string {
	if item, ok := p.Item(key); ok && item.Label != "" {
		return item.Label
	}
	return key
}

// Instructions composes the realtime agent instructions for a participant.
func (p *Profile) Instructions(participant string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Persona))
	if participant = strings.TrimSpace(participant); participant != "" {
		fmt.Fprintf(&b, "\n\nThe customer you are interviewing is named %s.", participant)
	}
	b.WriteString("\n\nKeep your questions aligned with the checklist. Summarise the highlight, pain point," +
		" and suggestion before closing with gratitude.")
	b.WriteString("\n\nChecklist:\n")
	b.WriteString(strings.TrimSpace(p.ChecklistText))
	return b.String()
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
