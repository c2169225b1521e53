package utils

import "strings"

// FirstJSONObject returns the outermost {...} span in s, or "" when none
// exists. Models wrap JSON in prose and fences often enough that scanning
// for braces beats demanding a clean payload.
func FirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
