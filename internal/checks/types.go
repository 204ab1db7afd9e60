// Package checks implements the deterministic check engine: a registry of
// pure functions executed over an MR diff, yielding verdict records and a
// weighted score. The engine never performs I/O.
package checks

import (
	"github.com/reviewgate/reviewgate/internal/model"
)

// Change is one changed file with its unified diff.
type Change struct {
	Path string
	Diff string
}

// MRContext carries the MR metadata checks may inspect.
type MRContext struct {
	Title       string
	Description string
}

// Context is the full input to a check run.
type Context struct {
	Changes []Change
	MR      MRContext
}

// Thresholds is the opaque per-check tuning map from the tenant overlay.
type Thresholds map[string]interface{}

// IntValue reads an integer threshold, falling back to def when absent or
// not numeric. JSON decoding yields float64 for numbers.
func (t Thresholds) IntValue(key string, def int) int {
	if t == nil {
		return def
	}
	switch v := t[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Result is the verdict a single check returns.
type Result struct {
	Status   model.CheckStatus
	Details  string
	FilePath string
	LineHint int
	Evidence string
}

// Definition describes one deterministic check.
type Definition struct {
	Key             string
	Title           string
	Category        model.CheckCategory
	DefaultSeverity model.Severity
	Rationale       string
	Run             func(ctx Context, thresholds Thresholds) Result
}

// Outcome is one executed check with its resolved severity.
type Outcome struct {
	CheckKey  string
	Title     string
	Category  model.CheckCategory
	Status    model.CheckStatus
	Severity  model.Severity
	Message   string
	FilePath  string
	LineStart int
	LineEnd   int
	Evidence  string
}

// severityFor resolves the severity from the verdict: FAIL is always a
// blocker; otherwise the check's default applies.
func severityFor(status model.CheckStatus, def model.Severity) model.Severity {
	switch status {
	case model.CheckStatusFail:
		return model.SeverityBlocker
	case model.CheckStatusWarn:
		return model.SeverityWarn
	default:
		if def == "" {
			return model.SeverityInfo
		}
		if def == model.SeverityBlocker {
			// PASS never carries a blocker severity
			return model.SeverityInfo
		}
		return def
	}
}
