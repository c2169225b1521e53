package utils

import "strings"

// SanitizeIdentifier makes an identifier safe for session IDs and filesystem
// paths. Session IDs embed a subject name, which may contain spaces or
// punctuation that would break file exports.
func SanitizeIdentifier(id string) string {
	sanitized := strings.TrimSpace(id)
	for _, bad := range []string{":", " ", "/", "\\", "\t", "\n"} {
		sanitized = strings.ReplaceAll(sanitized, bad, "-")
	}
	// Collapse runs of dashes left by adjacent replacements
	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}
	return strings.Trim(sanitized, "-")
}
