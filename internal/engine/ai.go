package engine

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/reviewgate/reviewgate/internal/checks"
	"github.com/reviewgate/reviewgate/internal/host"
	"github.com/reviewgate/reviewgate/internal/knowledge"
	"github.com/reviewgate/reviewgate/internal/llm"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/privacy"
	"github.com/reviewgate/reviewgate/internal/queue"
	"github.com/reviewgate/reviewgate/pkg/telemetry"
)

const precedentExcerptChars = 600

// augmentWithAI runs the optional LLM step. It is triple-gated: the process
// must have a client, the tenant must have augmentation enabled, and the
// total diff must fit the tenant's byte bound. Any failure inside this step
// logs and returns nothing; the run proceeds to SUCCEEDED regardless.
func (e *Engine) augmentWithAI(ctx context.Context, log *zap.Logger, run *model.ReviewRun, p queue.Payload, hostMR *host.MergeRequest, changes []host.FileChange, outcomes []checks.Outcome, precedents []knowledge.Match) []model.AiSuggestion {
	if e.llm == nil {
		return nil
	}
	cfg, err := e.store.Config().GetAiConfig(run.TenantID)
	if err != nil {
		log.Warn("ai config lookup failed", zap.Error(err))
		return nil
	}
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	if total := totalDiffBytes(changes); total > cfg.MaxTotalDiffBytes {
		log.Info("diff exceeds ai byte bound, skipping augmentation",
			zap.Int("diff_bytes", total),
			zap.Int("max_bytes", cfg.MaxTotalDiffBytes))
		return nil
	}

	_ = e.store.Run().UpdateProgress(run.ID, "ai", "requesting fix suggestions")

	maxSuggestions := cfg.MaxSuggestions
	if maxSuggestions <= 0 {
		maxSuggestions = llm.DefaultMaxSuggestions
	}

	findings, redaction := e.buildFindings(ctx, log, p, hostMR.HeadSHA, outcomes, cfg.MaxPromptChars, maxSuggestions)
	if len(findings) == 0 {
		return nil
	}

	req := llm.Request{
		MRTitle:        hostMR.Title,
		MRDescription:  hostMR.Description,
		Findings:       findings,
		Precedents:     precedentsToExcerpts(precedents),
		Redaction:      redaction,
		MaxSuggestions: maxSuggestions,
	}

	resp, err := e.llm.Review(ctx, req)
	telemetry.GetMetrics().RecordAIRequest(ctx, err == nil)
	if err != nil {
		log.Warn("ai augmentation failed, continuing without suggestions", zap.Error(err))
		return nil
	}
	if len(resp.Suggestions) == 0 {
		return nil
	}

	suggestions := suggestionsToModel(run, resp.Suggestions, maxSuggestions)
	runs := e.store.Run()
	if err := runs.DeleteSuggestions(run.ID); err != nil {
		log.Warn("stale suggestion cleanup failed", zap.Error(err))
	}
	if err := runs.CreateSuggestions(suggestions); err != nil {
		log.Warn("suggestion persist failed", zap.Error(err))
		return nil
	}
	return suggestions
}

// buildFindings converts failing checks to model findings, ranked by
// category priority and within a category FAIL ahead of WARN, keeping at
// most maxSuggestions of them. Each finding carries a redacted snippet
// when the file passes the privacy path policy; the returned report
// summarizes what redaction removed across all snippets. When no snippet
// survives the policy the findings go out snippet-free.
func (e *Engine) buildFindings(ctx context.Context, log *zap.Logger, p queue.Payload, headSHA string, outcomes []checks.Outcome, maxPromptChars, maxSuggestions int) ([]llm.Finding, llm.RedactionReport) {
	failing := make([]checks.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status != model.CheckStatusPass {
			failing = append(failing, o)
		}
	}
	if len(failing) == 0 {
		return nil, llm.RedactionReport{}
	}

	rank := make(map[model.CheckCategory]int, len(checks.CategoryOrder))
	for i, cat := range checks.CategoryOrder {
		rank[cat] = i
	}
	sort.SliceStable(failing, func(i, j int) bool {
		a, b := failing[i], failing[j]
		if rank[a.Category] != rank[b.Category] {
			return rank[a.Category] < rank[b.Category]
		}
		return a.Status == model.CheckStatusFail && b.Status != model.CheckStatusFail
	})
	if maxSuggestions > 0 && len(failing) > maxSuggestions {
		failing = failing[:maxSuggestions]
	}

	if maxPromptChars <= 0 {
		maxPromptChars = privacy.DefaultMaxPromptChars
	}
	budget := privacy.NewBudget(maxPromptChars)

	var redacted privacy.Report
	redactedFiles := make(map[string]bool)
	findings := make([]llm.Finding, 0, len(failing))
	fileCache := make(map[string]string)
	for _, o := range failing {
		f := llm.Finding{
			CheckKey: o.CheckKey,
			Category: string(o.Category),
			Status:   string(o.Status),
			Message:  o.Message,
			FilePath: o.FilePath,
			Line:     o.LineStart,
		}
		if o.FilePath != "" && privacy.IsPathAllowed(o.FilePath) && budget.Remaining() > 0 {
			content, ok := fileCache[o.FilePath]
			if !ok {
				raw, fetchErr := e.host.GetProjectFileRaw(ctx, p.ProjectID, o.FilePath, headSHA)
				if fetchErr != nil {
					log.Debug("snippet source fetch failed",
						zap.String("path", o.FilePath),
						zap.Error(fetchErr))
					fileCache[o.FilePath] = ""
				} else {
					content = string(raw)
					fileCache[o.FilePath] = content
				}
			}
			if content != "" {
				snippet, rep := privacy.BuildSnippet(o.FilePath, content, o.LineStart)
				if !rep.Empty() {
					redactedFiles[o.FilePath] = true
					redacted.Merge(rep)
				}
				f.Snippet = budget.Take(snippet.Text)
			}
		}
		findings = append(findings, f)
	}

	report := llm.RedactionReport{
		FilesRedacted: len(redactedFiles),
		LinesRemoved:  redacted.LinesRemoved,
	}
	for rule := range redacted.ByRule {
		report.PatternsMatched = append(report.PatternsMatched, rule)
	}
	sort.Strings(report.PatternsMatched)
	return findings, report
}

func totalDiffBytes(changes []host.FileChange) int {
	total := 0
	for _, c := range changes {
		total += len(c.Diff)
	}
	return total
}

func precedentsToExcerpts(matches []knowledge.Match) []llm.Precedent {
	out := make([]llm.Precedent, 0, len(matches))
	for _, m := range matches {
		excerpt := m.Source.ContentText
		if len(excerpt) > precedentExcerptChars {
			excerpt = excerpt[:precedentExcerptChars]
		}
		out = append(out, llm.Precedent{Title: m.Source.Title, Excerpt: excerpt})
	}
	return out
}

func suggestionsToModel(run *model.ReviewRun, raw []llm.Suggestion, max int) []model.AiSuggestion {
	if len(raw) > max {
		raw = raw[:max]
	}
	out := make([]model.AiSuggestion, 0, len(raw))
	for _, s := range raw {
		sug := model.AiSuggestion{
			TenantID:     run.TenantID,
			ReviewRunID:  run.ID,
			CheckKey:     s.CheckKey,
			Severity:     model.SeverityInfo,
			Title:        s.Title,
			Rationale:    s.Body,
			SuggestedFix: s.SuggestedFix,
		}
		if s.FilePath != "" {
			sug.Files = model.FileRefList{{Path: s.FilePath, LineStart: s.Line}}
		}
		out = append(out, sug)
	}
	return out
}
