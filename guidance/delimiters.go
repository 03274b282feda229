package guidance

import "strings"

// Delimiters around injected moderator instructions.
const (
	OpenTag  = "<MODERATOR_GUIDANCE>"
	CloseTag = "</MODERATOR_GUIDANCE>"
)

// IsWrapped reports whether text (after trimming) already starts and ends
// with the guidance delimiters.
func IsWrapped(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, OpenTag) && strings.HasSuffix(t, CloseTag)
}

// Wrap trims text and surrounds it with the guidance delimiters. Wrapped
// input is returned trimmed but otherwise unchanged, so Wrap is idempotent.
// Empty input yields an empty string.
func Wrap(text string) string {
	t := strings.TrimSpace(text)
	if t == "" || IsWrapped(t) {
		return t
	}
	return OpenTag + "\n" + t + "\n" + CloseTag
}

// Unwrap returns the body between the first pair of delimiters, trimmed.
// The second result is false when no complete pair is present.
func Unwrap(text string) (string, bool) {
	start := strings.Index(text, OpenTag)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(OpenTag):]
	end := strings.Index(rest, CloseTag)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
