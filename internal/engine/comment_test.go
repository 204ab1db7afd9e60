package engine

import (
	"strings"
	"testing"

	"github.com/reviewgate/reviewgate/internal/knowledge"
	"github.com/reviewgate/reviewgate/internal/model"
)

func sampleRun() *model.ReviewRun {
	return &model.ReviewRun{ID: "run123", HeadSHA: "abc123"}
}

func sampleResults() []model.ReviewCheckResult {
	return []model.ReviewCheckResult{
		{CheckKey: "security.hardcoded-secrets", Category: model.CategorySecurity, Status: model.CheckStatusFail, Severity: model.SeverityBlocker, Message: "added line looks like a hardcoded credential", FilePath: "apps/api/src/db.ts", LineStart: 4},
		{CheckKey: "quality.debug-statements", Category: model.CategoryCodeQuality, Status: model.CheckStatusPass, Severity: model.SeverityInfo, Message: "no findings"},
		{CheckKey: "testing.tests-updated", Category: model.CategoryTesting, Status: model.CheckStatusWarn, Severity: model.SeverityWarn, Message: "code files changed but no test files were touched"},
	}
}

func TestRenderSummaryCommentLayout(t *testing.T) {
	body, aiIncluded, hash := RenderSummaryComment(CommentInput{
		Run:     sampleRun(),
		Results: sampleResults(),
		Score:   52,
	})

	lines := strings.Split(body, "\n")
	if lines[0] != "## 🤖 Automated Review (Deterministic Checks)" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "**Score:** 52/100 — 1 PASS / 1 WARN / 1 FAIL" {
		t.Errorf("score line = %q", lines[1])
	}
	if lines[2] != "**Head SHA:** `abc123`" {
		t.Errorf("sha line = %q", lines[2])
	}
	if lines[3] != "**Run ID:** `run123`" {
		t.Errorf("run line = %q", lines[3])
	}

	if !strings.Contains(body, "### SECURITY\n- ❌ FAIL `security.hardcoded-secrets`: added line looks like a hardcoded credential (apps/api/src/db.ts:4)") {
		t.Errorf("security block wrong:\n%s", body)
	}
	if !strings.Contains(body, "### CODE_QUALITY\n- ✅ PASS `quality.debug-statements`\n") {
		t.Errorf("pass lines must not carry messages:\n%s", body)
	}
	if !strings.Contains(body, "### TESTING\n- ⚠️ WARN `testing.tests-updated`: code files changed but no test files were touched") {
		t.Errorf("testing block wrong:\n%s", body)
	}

	// Categories appear in priority order.
	sec := strings.Index(body, "### SECURITY")
	cq := strings.Index(body, "### CODE_QUALITY")
	tst := strings.Index(body, "### TESTING")
	if !(sec < cq && cq < tst) {
		t.Errorf("category order wrong: %d %d %d", sec, cq, tst)
	}

	if aiIncluded {
		t.Error("aiIncluded = true without suggestions")
	}
	if hash == "" {
		t.Error("hash empty; the empty AI section still hashes")
	}
	if strings.Contains(body, "GOLD precedent") || strings.Contains(body, "Similar precedents") {
		t.Errorf("optional sections rendered without input:\n%s", body)
	}
}

func TestRenderSummaryCommentOptionalSections(t *testing.T) {
	body, aiIncluded, hash := RenderSummaryComment(CommentInput{
		Run:          sampleRun(),
		Results:      sampleResults(),
		Score:        52,
		GoldPromoted: true,
		Precedents: []knowledge.Match{{
			Source: &model.KnowledgeSource{Title: "Checkout groundwork", ProviderID: "42:1"},
		}},
		Suggestions: []model.AiSuggestion{{
			CheckKey:     "security.hardcoded-secrets",
			Title:        "Move the credential to configuration",
			Rationale:    "Secrets in source end up in git history.",
			SuggestedFix: "Read the value from the environment at startup.",
		}},
	})

	if !strings.Contains(body, "\n✅ **Promoted to GOLD precedent**\n") {
		t.Errorf("promotion line missing:\n%s", body)
	}
	if !strings.Contains(body, "**Similar precedents:**\n- Checkout groundwork (`42:1`)") {
		t.Errorf("precedent list wrong:\n%s", body)
	}
	if !strings.Contains(body, "### 🤖 AI Fix Suggestions (Preview)\n\n**1. Move the credential to configuration** (`security.hardcoded-secrets`)") {
		t.Errorf("AI section wrong:\n%s", body)
	}
	if !aiIncluded {
		t.Error("aiIncluded = false with suggestions present")
	}

	// The hash covers only the AI section and is stable across renders.
	_, _, again := RenderSummaryComment(CommentInput{
		Run:     sampleRun(),
		Results: nil,
		Score:   0,
		Suggestions: []model.AiSuggestion{{
			CheckKey:     "security.hardcoded-secrets",
			Title:        "Move the credential to configuration",
			Rationale:    "Secrets in source end up in git history.",
			SuggestedFix: "Read the value from the environment at startup.",
		}},
	})
	if hash != again {
		t.Errorf("AI hash varies with non-AI input: %s vs %s", hash, again)
	}
}

func TestRenderSummaryCommentDeterministicOrder(t *testing.T) {
	results := sampleResults()
	a, _, _ := RenderSummaryComment(CommentInput{Run: sampleRun(), Results: results, Score: 52})

	// Reversed input order produces the identical body.
	reversed := []model.ReviewCheckResult{results[2], results[1], results[0]}
	b, _, _ := RenderSummaryComment(CommentInput{Run: sampleRun(), Results: reversed, Score: 52})
	if a != b {
		t.Errorf("render depends on input order:\n%s\n---\n%s", a, b)
	}
}

func TestRunSummary(t *testing.T) {
	got := runSummary(sampleResults())
	if got != "3 checks: 1 PASS / 1 WARN / 1 FAIL" {
		t.Errorf("runSummary() = %q", got)
	}
	if runSummary(nil) != "0 checks: 0 PASS / 0 WARN / 0 FAIL" {
		t.Errorf("empty runSummary() = %q", runSummary(nil))
	}
}
