package checks

import (
	"regexp"
	"strconv"
	"strings"
)

// AddedLine is one line introduced by a diff, with its post-image line number.
type AddedLine struct {
	Text   string
	Number int
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// AddedLines walks a unified diff and returns every added line with its
// line number in the new file. Context lines advance the counter, removed
// lines do not. Malformed hunks outside a header are skipped.
func AddedLines(diff string) []AddedLine {
	var out []AddedLine
	line := 0
	inHunk := false

	for _, raw := range strings.Split(diff, "\n") {
		if m := hunkHeaderRe.FindStringSubmatch(raw); m != nil {
			start, err := strconv.Atoi(m[1])
			if err != nil {
				inHunk = false
				continue
			}
			line = start
			inHunk = true
			continue
		}
		if !inHunk {
			continue
		}
		switch {
		case strings.HasPrefix(raw, "+++"), strings.HasPrefix(raw, "---"):
			// File headers inside concatenated diffs end the hunk
			inHunk = false
		case strings.HasPrefix(raw, "+"):
			out = append(out, AddedLine{Text: raw[1:], Number: line})
			line++
		case strings.HasPrefix(raw, "-"):
			// Removed line, post-image counter unchanged
		case strings.HasPrefix(raw, `\`):
			// "\ No newline at end of file"
		default:
			line++
		}
	}
	return out
}

// AddedLineCount returns the number of added lines across all changes.
func AddedLineCount(changes []Change) int {
	total := 0
	for _, c := range changes {
		total += len(AddedLines(c.Diff))
	}
	return total
}

// firstMatch scans all changes for the first added line matching re and
// returns a FAIL-ready location triple, plus the total match count.
func firstMatch(changes []Change, re *regexp.Regexp) (path string, line int, evidence string, count int) {
	for _, c := range changes {
		for _, al := range AddedLines(c.Diff) {
			if re.MatchString(al.Text) {
				if count == 0 {
					path = c.Path
					line = al.Number
					evidence = strings.TrimSpace(al.Text)
				}
				count++
			}
		}
	}
	return path, line, evidence, count
}
