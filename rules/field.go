package rules

import (
	"strings"
	"unicode"
)

// normalizeField maps a criteria field name to its column name. Camel case,
// hyphens and spaces are accepted: "testPriority", "Test-Priority" and
// "test priority" all become "test_priority".
func normalizeField(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			b.WriteByte('_')
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r)
		}
	}
	return b.String()
}
