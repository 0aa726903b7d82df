package util

import (
	"html"
	"strings"
)

// SanitizeInput trims and escapes HTML/script-like characters. Lead form
// fields pass through here before being persisted or indexed.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious reports whether an input string carries common
// injection markers. Suspicious lead submissions are rejected outright.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
