package token

import (
	"regexp"
	"strings"
)

// nameFormat is the lowercase DNS-like alias format a TokenRecord's name
// must satisfy when present: starts and ends with an alphanumeric, with
// hyphens permitted in between, 3-64 characters total.
var nameFormat = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

func normalizeTokenName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validTokenName(name string) bool {
	return nameFormat.MatchString(name)
}

// dedupGroups collapses duplicate group names while preserving first-seen
// order, per the TokenRecord invariant that its group list never repeats.
func dedupGroups(groups []string) []string {
	seen := make(map[string]bool, len(groups))
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}
