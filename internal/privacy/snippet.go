package privacy

import (
	"strings"
)

// SnippetRadius is the number of context lines kept on each side of the
// line of interest. A window is therefore at most 2*SnippetRadius+1 lines.
const SnippetRadius = 40

// Snippet is a bounded excerpt of a file.
type Snippet struct {
	Path      string
	StartLine int
	EndLine   int
	Text      string
}

// WindowAround extracts the lines around lineHint (1-based). A hint of 0
// or beyond the file clamps to the nearest valid window. The returned
// start/end are 1-based inclusive line numbers.
func WindowAround(content string, lineHint int) (text string, start, end int) {
	lines := strings.Split(content, "\n")
	n := len(lines)
	if n == 0 {
		return "", 0, 0
	}

	if lineHint < 1 {
		lineHint = 1
	}
	if lineHint > n {
		lineHint = n
	}

	start = lineHint - SnippetRadius
	if start < 1 {
		start = 1
	}
	end = lineHint + SnippetRadius
	if end > n {
		end = n
	}

	return strings.Join(lines[start-1:end], "\n"), start, end
}

// BuildSnippet extracts and redacts a window from file content. The
// returned report covers only this snippet.
func BuildSnippet(path, content string, lineHint int) (Snippet, Report) {
	text, start, end := WindowAround(content, lineHint)
	redacted, report := Redact(text)
	return Snippet{
		Path:      path,
		StartLine: start,
		EndLine:   end,
		Text:      redacted,
	}, report
}
