// Package llm adapts an OpenAI-style chat completion endpoint into a typed
// review-suggestion client. Inputs are already privacy-bounded by the
// caller; this package never sees a raw diff.
package llm

import (
	"context"
	"time"
)

// DefaultTimeout bounds one review call end to end, retries included.
const DefaultTimeout = 120 * time.Second

// DefaultMaxSuggestions caps suggestions requested per run.
const DefaultMaxSuggestions = 5

// Finding is one failing deterministic check with its bounded snippet.
type Finding struct {
	CheckKey string `json:"checkKey"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	FilePath string `json:"filePath,omitempty"`
	Line     int    `json:"line,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

// Precedent is a matched GOLD source excerpt.
type Precedent struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

// RedactionReport summarizes what the privacy layer removed from the
// snippets before they reached this package. It travels with the request
// so the model knows markers in the code stand for scrubbed content.
type RedactionReport struct {
	FilesRedacted   int      `json:"filesRedacted"`
	LinesRemoved    int      `json:"totalLinesRemoved"`
	PatternsMatched []string `json:"patternsMatched,omitempty"`
}

// Request carries everything the model may see about a review.
type Request struct {
	MRTitle        string
	MRDescription  string
	Findings       []Finding
	Precedents     []Precedent
	Guidelines     []string
	Redaction      RedactionReport
	MaxSuggestions int
}

// Suggestion is one normalized model suggestion.
type Suggestion struct {
	CheckKey     string `json:"checkKey,omitempty"`
	FilePath     string `json:"filePath,omitempty"`
	Line         int    `json:"line,omitempty"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	SuggestedFix string `json:"suggestedFix"`
}

// Response is the parsed model output.
type Response struct {
	Summary     string       `json:"summary"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Client produces review suggestions from bounded findings.
type Client interface {
	Review(ctx context.Context, req Request) (*Response, error)
}
