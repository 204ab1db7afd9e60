package checks

import (
	"fmt"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/pkg/logger"
)

// Engine executes the check registry over a diff context with an optional
// per-tenant configuration overlay.
type Engine struct {
	registry []Definition
}

// NewEngine creates an engine over the builtin registry.
func NewEngine() *Engine {
	return &Engine{registry: Registry()}
}

// NewEngineWith creates an engine over an explicit definition list.
// Used by tests to exercise overlay and panic handling in isolation.
func NewEngineWith(defs []Definition) *Engine {
	return &Engine{registry: defs}
}

// Run executes every enabled check in registry order. overlays is keyed by
// check key; a disabled entry skips the check, a severity override replaces
// the resolved severity, and thresholds are passed through opaquely. A
// panicking check yields a FAIL outcome instead of aborting the run.
func (e *Engine) Run(ctx Context, overlays map[string]*model.CheckConfig) []Outcome {
	outcomes := make([]Outcome, 0, len(e.registry))

	for _, def := range e.registry {
		var thresholds Thresholds
		severityOverride := model.Severity("")

		if cfg, ok := overlays[def.Key]; ok && cfg != nil {
			if !cfg.Enabled {
				continue
			}
			if cfg.Thresholds != nil {
				thresholds = Thresholds(cfg.Thresholds)
			}
			severityOverride = cfg.SeverityOverride
		}

		res := e.runOne(def, ctx, thresholds)

		severity := severityFor(res.Status, def.DefaultSeverity)
		if severityOverride != "" && res.Status != model.CheckStatusPass {
			severity = severityOverride
		}

		o := Outcome{
			CheckKey: def.Key,
			Title:    def.Title,
			Category: def.Category,
			Status:   res.Status,
			Severity: severity,
			Message:  res.Details,
			FilePath: res.FilePath,
			Evidence: res.Evidence,
		}
		if res.LineHint > 0 {
			o.LineStart = res.LineHint
			o.LineEnd = res.LineHint
		}
		outcomes = append(outcomes, o)
	}

	return outcomes
}

func (e *Engine) runOne(def Definition, ctx Context, thresholds Thresholds) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("check %s panicked: %v", def.Key, r))
			res = Result{
				Status:  model.CheckStatusFail,
				Details: fmt.Sprintf("check raised: %v", r),
			}
		}
	}()
	return def.Run(ctx, thresholds)
}
