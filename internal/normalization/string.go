package normalization

import (
	"strings"
)

// NormalizeName is the dedup and matching key for class, ability and
// character names: lower-cased, trimmed, inner whitespace collapsed.
func NormalizeName(input string) string {
	return strings.Join(strings.Fields(strings.ToLower(input)), " ")
}

func NormalizeNames(inputs []string) []string {
	out := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		n := NormalizeName(in)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// CleanDisplay trims a display name and collapses whitespace without changing case.
func CleanDisplay(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
