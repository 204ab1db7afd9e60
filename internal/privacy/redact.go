package privacy

import (
	"regexp"
	"strings"
)

// Line-level rules remove the whole line: a partially scrubbed secret is
// still a secret.
var lineRules = []struct {
	name string
	re   *regexp.Regexp
}{
	{"api_key", regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token|auth[_-]?token)\s*[:=]`)},
	{"private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----|-----END [A-Z ]*PRIVATE KEY-----`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[a-z0-9_\-\.]{16,}`)},
	{"jwt", regexp.MustCompile(`eyJ[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]+`)},
	{"password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*\S`)},
	{"aws_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
}

// Inline rules replace just the matched token.
var inlineRules = []struct {
	name        string
	re          *regexp.Regexp
	replacement string
}{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[redacted-email]"},
	{"phone", regexp.MustCompile(`\+?[0-9][0-9\-\s()]{7,}[0-9]`), "[redacted-phone]"},
}

const removedLineMarker = "[redacted-line]"

// Report records what redaction removed, by rule name.
type Report struct {
	LinesRemoved   int            `json:"lines_removed"`
	InlineReplaced int            `json:"inline_replaced"`
	ByRule         map[string]int `json:"by_rule,omitempty"`
}

// Empty reports whether nothing was redacted.
func (r Report) Empty() bool {
	return r.LinesRemoved == 0 && r.InlineReplaced == 0
}

func (r *Report) bump(rule string, n int) {
	if r.ByRule == nil {
		r.ByRule = make(map[string]int)
	}
	r.ByRule[rule] += n
}

// Redact scrubs secrets and PII from text. Secret-bearing lines are
// replaced wholesale with a marker; emails and phone numbers are replaced
// in place. Redact is idempotent: running it over its own output changes
// nothing further.
func Redact(text string) (string, Report) {
	var report Report
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		if line == removedLineMarker {
			out = append(out, line)
			continue
		}

		removed := false
		for _, rule := range lineRules {
			if rule.re.MatchString(line) {
				report.LinesRemoved++
				report.bump(rule.name, 1)
				out = append(out, removedLineMarker)
				removed = true
				break
			}
		}
		if removed {
			continue
		}

		for _, rule := range inlineRules {
			if hits := len(rule.re.FindAllStringIndex(line, -1)); hits > 0 {
				report.InlineReplaced += hits
				report.bump(rule.name, hits)
				line = rule.re.ReplaceAllString(line, rule.replacement)
			}
		}
		out = append(out, line)
	}

	return strings.Join(out, "\n"), report
}

// Merge folds another report into this one.
func (r *Report) Merge(other Report) {
	r.LinesRemoved += other.LinesRemoved
	r.InlineReplaced += other.InlineReplaced
	for rule, n := range other.ByRule {
		r.bump(rule, n)
	}
}
