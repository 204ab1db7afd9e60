package engine

import "regexp"

// Error text persisted on a run is exposed through the control API, so
// anything that looks like a credential is scrubbed first.
var sanitizeRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)glpat-[A-Za-z0-9_\-]{10,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.=]+`),
	regexp.MustCompile(`(?i)(token|secret|password|api[_-]?key)(["']?\s*[:=]\s*["']?)[^\s"'&]+`),
	regexp.MustCompile(`(?i)(private[_-]token=)[^\s"'&]+`),
	regexp.MustCompile(`https?://[^/\s:]+:[^@\s]+@`),
}

// SanitizeError removes token and password material from an error message.
func SanitizeError(msg string) string {
	out := msg
	out = sanitizeRules[0].ReplaceAllString(out, "[redacted]")
	out = sanitizeRules[1].ReplaceAllString(out, "bearer [redacted]")
	out = sanitizeRules[2].ReplaceAllString(out, "$1$2[redacted]")
	out = sanitizeRules[3].ReplaceAllString(out, "$1[redacted]")
	out = sanitizeRules[4].ReplaceAllString(out, "https://[redacted]@")
	return out
}
