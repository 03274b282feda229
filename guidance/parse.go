package guidance

import "strings"

// Parsed is the structured form of a guidance block.
type Parsed struct {
	Checklist string
	Coach     string
	Prompt    string
}

// Parse extracts the Checklist, Coach and Prompt lines from a delimited
// guidance block. Labels match case-insensitively. It reports false unless
// the delimiters and all three lines are present.
func Parse(raw string) (Parsed, bool) {
	body, ok := Unwrap(raw)
	if !ok {
		return Parsed{}, false
	}

	var p Parsed
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if v, ok := cutLabel(line, "checklist:"); ok {
			p.Checklist = v
		} else if v, ok := cutLabel(line, "coach:"); ok {
			p.Coach = v
		} else if v, ok := cutLabel(line, "prompt:"); ok {
			p.Prompt = v
		}
	}

	if p.Checklist == "" || p.Coach == "" || p.Prompt == "" {
		return Parsed{}, false
	}
	return p, true
}

// Format renders p as a delimited guidance block.
func (p Parsed) Format() string {
	return Wrap("Checklist: " + p.Checklist + "\nCoach: " + p.Coach + "\nPrompt: " + p.Prompt)
}

func cutLabel(line, label string) (string, bool) {
	if len(line) < len(label) || !strings.EqualFold(line[:len(label)], label) {
		return "", false
	}
	return strings.TrimSpace(line[len(label):]), true
}
