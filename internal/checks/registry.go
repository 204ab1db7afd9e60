package checks

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/reviewgate/reviewgate/internal/model"
)

var (
	secretRe = regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|password|passwd)\s*[:=]\s*['"][^'"]{8,}['"]|-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----|AKIA[0-9A-Z]{16}|(?i)bearer\s+[a-z0-9_\-\.]{20,}`)

	insecureURLRe = regexp.MustCompile(`http://(?:[a-zA-Z0-9\-]+\.)+[a-zA-Z]{2,}`)

	evalRe = regexp.MustCompile(`\beval\s*\(|\bnew Function\s*\(|child_process|\bexecSync\s*\(`)

	debugLogRe = regexp.MustCompile(`console\.(log|debug|trace)\s*\(|\bprint\s*\(\s*['"]DEBUG|debugger\b`)

	deepImportRe = regexp.MustCompile(`(from\s+['"]|require\s*\(\s*['"])(\.\./){3,}`)

	envDirectRe = regexp.MustCompile(`process\.env\.[A-Z0-9_]+`)

	syncIORe = regexp.MustCompile(`\b(readFileSync|writeFileSync|existsSync|readdirSync)\s*\(`)

	selectStarRe = regexp.MustCompile(`(?i)select\s+\*\s+from\b`)

	skippedTestRe = regexp.MustCompile(`\b(it|describe|test)\.(skip|todo)\s*\(|\bxit\s*\(|\bxdescribe\s*\(`)

	emptyCatchRe = regexp.MustCompile(`catch\s*(\([^)]*\))?\s*\{\s*\}`)

	conflictMarkerRe = regexp.MustCompile(`^(<{7}|={7}|>{7})( |$)`)

	todoRe = regexp.MustCompile(`\b(TODO|FIXME|XXX)\b`)

	testFileRe = regexp.MustCompile(`(\.(test|spec)\.[jt]sx?$|_test\.go$|^tests?/|/tests?/|/__tests__/)`)

	codeFileRe = regexp.MustCompile(`\.(ts|tsx|js|jsx|go|py|rb|java|cs)$`)

	generatedPathRe = regexp.MustCompile(`(^|/)(node_modules|dist|build|coverage|\.next)/`)
)

// builtins is the fixed registry of deterministic checks, grouped by
// category. Order here is the execution and report order.
var builtins = []Definition{
	{
		Key:             "security.hardcoded-secrets",
		Title:           "No hardcoded secrets",
		Category:        model.CategorySecurity,
		DefaultSeverity: model.SeverityBlocker,
		Rationale:       "Credentials committed to history must be rotated and scrubbed.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanFail(ctx.Changes, secretRe, "added line looks like a hardcoded credential")
		},
	},
	{
		Key:             "security.insecure-transport",
		Title:           "No plaintext HTTP endpoints",
		Category:        model.CategorySecurity,
		DefaultSeverity: model.SeverityWarn,
		Rationale:       "External calls over http:// leak data in transit.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanWarn(ctx.Changes, insecureURLRe, "added line references a plaintext http:// URL")
		},
	},
	{
		Key:             "security.dynamic-execution",
		Title:           "No dynamic code execution",
		Category:        model.CategorySecurity,
		DefaultSeverity: model.SeverityBlocker,
		Rationale:       "eval and shell-outs on user-reachable paths enable injection.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanFail(ctx.Changes, evalRe, "added line uses dynamic code or shell execution")
		},
	},
	{
		Key:             "quality.debug-statements",
		Title:           "No leftover debug output",
		Category:        model.CategoryCodeQuality,
		DefaultSeverity: model.SeverityWarn,
		Rationale:       "console.log and debugger statements do not belong in merged code.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanWarn(ctx.Changes, debugLogRe, "added line contains debug output")
		},
	},
	{
		Key:             "quality.change-size",
		Title:           "Change is reviewable in size",
		Category:        model.CategoryCodeQuality,
		DefaultSeverity: model.SeverityWarn,
		Rationale:       "Very large MRs get shallow reviews; split them.",
		Run: func(ctx Context, thresholds Thresholds) Result {
			max := thresholds.IntValue("maxAddedLines", 400)
			added := AddedLineCount(ctx.Changes)
			if added > max {
				return Result{
					Status:  model.CheckStatusWarn,
					Details: fmt.Sprintf("%d added lines exceed the %d-line review budget", added, max),
				}
			}
			return Result{Status: model.CheckStatusPass, Details: fmt.Sprintf("%d added lines", added)}
		},
	},
	{
		Key:             "quality.long-lines",
		Title:           "Lines stay readable",
		Category:        model.CategoryCodeQuality,
		DefaultSeverity: model.SeverityInfo,
		Rationale:       "Extremely long lines usually hide dense expressions or inlined data.",
		Run: func(ctx Context, thresholds Thresholds) Result {
			max := thresholds.IntValue("maxLineLength", 200)
			for _, c := range ctx.Changes {
				for _, al := range AddedLines(c.Diff) {
					if len(al.Text) > max {
						return Result{
							Status:   model.CheckStatusWarn,
							Details:  fmt.Sprintf("added line exceeds %d characters", max),
							FilePath: c.Path,
							LineHint: al.Number,
						}
					}
				}
			}
			return Result{Status: model.CheckStatusPass, Details: "no oversized lines"}
		},
	},
	{
		Key:             "architecture.deep-relative-imports",
		Title:           "No deep relative imports",
		Category:        model.CategoryArchitecture,
		DefaultSeverity: model.SeverityWarn,
		Rationale:       "Imports reaching three or more levels up couple unrelated modules.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanWarn(ctx.Changes, deepImportRe, "added import climbs three or more directory levels")
		},
	},
	{
		Key:             "architecture.env-access",
		Title:           "Environment access stays in config modules",
		Category:        model.CategoryArchitecture,
		DefaultSeverity: model.SeverityInfo,
		Rationale:       "Scattered process.env reads defeat centralized configuration.",
		Run: func(ctx Context, _ Thresholds) Result {
			var path string
			var line int
			count := 0
			for _, c := range ctx.Changes {
				if strings.Contains(c.Path, "config") {
					continue
				}
				for _, al := range AddedLines(c.Diff) {
					if envDirectRe.MatchString(al.Text) {
						if count == 0 {
							path, line = c.Path, al.Number
						}
						count++
					}
				}
			}
			if count > 0 {
				return Result{
					Status:   model.CheckStatusWarn,
					Details:  fmt.Sprintf("%d direct environment read(s) outside config modules", count),
					FilePath: path,
					LineHint: line,
				}
			}
			return Result{Status: model.CheckStatusPass, Details: "environment access is centralized"}
		},
	},
	{
		Key:             "performance.sync-io",
		Title:           "No blocking filesystem calls",
		Category:        model.CategoryPerformance,
		DefaultSeverity: model.SeverityWarn,
		Rationale:       "Synchronous I/O stalls the event loop under load.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanWarn(ctx.Changes, syncIORe, "added line performs synchronous filesystem I/O")
		},
	},
	{
		Key:             "performance.select-star",
		Title:           "Queries project explicit columns",
		Category:        model.CategoryPerformance,
		DefaultSeverity: model.SeverityInfo,
		Rationale:       "SELECT * fetches unneeded columns and breaks on schema drift.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanWarn(ctx.Changes, selectStarRe, "added query selects all columns")
		},
	},
	{
		Key:             "testing.tests-updated",
		Title:           "Code changes ship with tests",
		Category:        model.CategoryTesting,
		DefaultSeverity: model.SeverityWarn,
		Rationale:       "Behavior changes without test changes tend to regress silently.",
		Run: func(ctx Context, _ Thresholds) Result {
			codeTouched := false
			testTouched := false
			for _, c := range ctx.Changes {
				if testFileRe.MatchString(c.Path) {
					testTouched = true
				} else if codeFileRe.MatchString(c.Path) {
					codeTouched = true
				}
			}
			if codeTouched && !testTouched {
				return Result{
					Status:  model.CheckStatusWarn,
					Details: "code files changed but no test files were touched",
				}
			}
			return Result{Status: model.CheckStatusPass, Details: "test coverage accompanies the change"}
		},
	},
	{
		Key:             "testing.skipped-tests",
		Title:           "No skipped or stubbed tests",
		Category:        model.CategoryTesting,
		DefaultSeverity: model.SeverityWarn,
		Rationale:       "Skipped tests rot; either fix or delete them.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanWarn(ctx.Changes, skippedTestRe, "added line skips a test")
		},
	},
	{
		Key:             "observability.swallowed-errors",
		Title:           "Errors are not silently swallowed",
		Category:        model.CategoryObservability,
		DefaultSeverity: model.SeverityWarn,
		Rationale:       "Empty catch blocks hide failures from logs and operators.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanWarn(ctx.Changes, emptyCatchRe, "added catch block discards the error")
		},
	},
	{
		Key:             "hygiene.conflict-markers",
		Title:           "No merge conflict markers",
		Category:        model.CategoryRepoHygiene,
		DefaultSeverity: model.SeverityBlocker,
		Rationale:       "Conflict markers in committed files are always a mistake.",
		Run: func(ctx Context, _ Thresholds) Result {
			return scanFail(ctx.Changes, conflictMarkerRe, "added line contains a merge conflict marker")
		},
	},
	{
		Key:             "hygiene.todo-markers",
		Title:           "TODOs reference follow-up work",
		Category:        model.CategoryRepoHygiene,
		DefaultSeverity: model.SeverityInfo,
		Rationale:       "New TODO/FIXME markers should be tracked, not accumulated.",
		Run: func(ctx Context, thresholds Thresholds) Result {
			max := thresholds.IntValue("maxNewTodos", 0)
			_, _, _, count := firstMatch(ctx.Changes, todoRe)
			if count > max {
				path, line, evidence, _ := firstMatch(ctx.Changes, todoRe)
				return Result{
					Status:   model.CheckStatusWarn,
					Details:  fmt.Sprintf("%d new TODO/FIXME marker(s) added", count),
					FilePath: path,
					LineHint: line,
					Evidence: evidence,
				}
			}
			return Result{Status: model.CheckStatusPass, Details: "no untracked TODO markers"}
		},
	},
	{
		Key:             "hygiene.generated-files",
		Title:           "Generated artifacts are not committed",
		Category:        model.CategoryRepoHygiene,
		DefaultSeverity: model.SeverityWarn,
		Rationale:       "Build output and vendored trees bloat the repository.",
		Run: func(ctx Context, _ Thresholds) Result {
			for _, c := range ctx.Changes {
				if generatedPathRe.MatchString(c.Path) {
					return Result{
						Status:   model.CheckStatusWarn,
						Details:  "change touches generated or vendored paths",
						FilePath: c.Path,
					}
				}
			}
			return Result{Status: model.CheckStatusPass, Details: "no generated artifacts"}
		},
	},
}

// Registry returns the builtin check definitions in execution order.
func Registry() []Definition {
	out := make([]Definition, len(builtins))
	copy(out, builtins)
	return out
}

func scanFail(changes []Change, re *regexp.Regexp, detail string) Result {
	return scanStatus(changes, re, detail, model.CheckStatusFail)
}

func scanWarn(changes []Change, re *regexp.Regexp, detail string) Result {
	return scanStatus(changes, re, detail, model.CheckStatusWarn)
}

func scanStatus(changes []Change, re *regexp.Regexp, detail string, onHit model.CheckStatus) Result {
	path, line, evidence, count := firstMatch(changes, re)
	if count == 0 {
		return Result{Status: model.CheckStatusPass, Details: "no findings"}
	}
	if count > 1 {
		detail = fmt.Sprintf("%s (%d occurrences)", detail, count)
	}
	return Result{
		Status:   onHit,
		Details:  detail,
		FilePath: path,
		LineHint: line,
		Evidence: evidence,
	}
}
