package railpass

import "strings"

// RedactID masks an identity number for display. Values shorter than six
// characters are returned unchanged; longer ones keep the first three and
// last four characters and replace the rest with '*'. Length is preserved.
func RedactID(raw string) string {
	r := []rune(raw)
	if len(r) < 6 {
		return raw
	}
	hidden := len(r) - 7
	if hidden <= 0 {
		// Six or seven characters: prefix and suffix already cover the value.
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw))
	b.WriteString(string(r[:3]))
	b.WriteString(strings.Repeat("*", hidden))
	b.WriteString(string(r[len(r)-4:]))
	return b.String()
}
