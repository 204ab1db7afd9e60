package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/reviewgate/reviewgate/internal/checks"
	"github.com/reviewgate/reviewgate/internal/knowledge"
	"github.com/reviewgate/reviewgate/internal/model"
)

const summaryHeader = "## 🤖 Automated Review (Deterministic Checks)"

const aiSectionHeader = "### 🤖 AI Fix Suggestions (Preview)"

// CommentInput is everything the summary renderer consumes.
type CommentInput struct {
	Run          *model.ReviewRun
	Results      []model.ReviewCheckResult
	Suggestions  []model.AiSuggestion
	Score        int
	GoldPromoted bool
	Precedents   []knowledge.Match
}

func statusIcon(s model.CheckStatus) string {
	switch s {
	case model.CheckStatusPass:
		return "✅"
	case model.CheckStatusWarn:
		return "⚠️"
	default:
		return "❌"
	}
}

// RenderSummaryComment produces the single markdown block the worker owns
// on the MR. The output is deterministic for identical input, which makes
// the comment reconciliation step a pure comparison. It returns the body,
// whether an AI section is present, and the sha256 of that section.
func RenderSummaryComment(in CommentInput) (body string, aiIncluded bool, aiSummaryHash string) {
	var sb strings.Builder

	pass, warn, fail := countStatuses(in.Results)
	sb.WriteString(summaryHeader + "\n")
	fmt.Fprintf(&sb, "**Score:** %d/100 — %d PASS / %d WARN / %d FAIL\n", in.Score, pass, warn, fail)
	fmt.Fprintf(&sb, "**Head SHA:** `%s`\n", in.Run.HeadSHA)
	fmt.Fprintf(&sb, "**Run ID:** `%s`\n", in.Run.ID)

	byCategory := make(map[model.CheckCategory][]model.ReviewCheckResult)
	for _, r := range in.Results {
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}
	for _, cat := range checks.CategoryOrder {
		results := byCategory[cat]
		if len(results) == 0 {
			continue
		}
		// Stable body regardless of whether results arrive in execution or
		// storage order.
		sort.Slice(results, func(i, j int) bool { return results[i].CheckKey < results[j].CheckKey })
		fmt.Fprintf(&sb, "\n### %s\n", cat)
		for _, r := range results {
			fmt.Fprintf(&sb, "- %s %s `%s`", statusIcon(r.Status), r.Status, r.CheckKey)
			if r.Status != model.CheckStatusPass && r.Message != "" {
				sb.WriteString(": " + r.Message)
				if r.FilePath != "" {
					if r.LineStart > 0 {
						fmt.Fprintf(&sb, " (%s:%d)", r.FilePath, r.LineStart)
					} else {
						fmt.Fprintf(&sb, " (%s)", r.FilePath)
					}
				}
			}
			sb.WriteString("\n")
		}
	}

	if in.GoldPromoted {
		sb.WriteString("\n✅ **Promoted to GOLD precedent**\n")
	}

	if len(in.Precedents) > 0 {
		sb.WriteString("\n**Similar precedents:**\n")
		for _, m := range in.Precedents {
			title := m.Source.Title
			if title == "" {
				title = m.Source.ProviderID
			}
			fmt.Fprintf(&sb, "- %s (`%s`)\n", title, m.Source.ProviderID)
		}
	}

	aiSection := renderAISection(in.Suggestions)
	if aiSection != "" {
		sb.WriteString("\n" + aiSection)
		aiIncluded = true
	}

	sum := sha256.Sum256([]byte(aiSection))
	return sb.String(), aiIncluded, hex.EncodeToString(sum[:])
}

func renderAISection(suggestions []model.AiSuggestion) string {
	if len(suggestions) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(aiSectionHeader + "\n")
	for i, s := range suggestions {
		fmt.Fprintf(&sb, "\n**%d. %s**", i+1, s.Title)
		if s.CheckKey != "" {
			fmt.Fprintf(&sb, " (`%s`)", s.CheckKey)
		}
		sb.WriteString("\n")
		if s.Rationale != "" {
			sb.WriteString(s.Rationale + "\n")
		}
		sb.WriteString("Suggested fix:\n")
		sb.WriteString(s.SuggestedFix + "\n")
	}
	return sb.String()
}

func countStatuses(results []model.ReviewCheckResult) (pass, warn, fail int) {
	for _, r := range results {
		switch r.Status {
		case model.CheckStatusPass:
			pass++
		case model.CheckStatusWarn:
			warn++
		case model.CheckStatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

// runSummary is the one-line summary persisted on the run.
func runSummary(results []model.ReviewCheckResult) string {
	pass, warn, fail := countStatuses(results)
	return fmt.Sprintf("%d checks: %d PASS / %d WARN / %d FAIL", len(results), pass, warn, fail)
}

// scoreFromResults recomputes the weighted score from persisted rows, used
// when the idempotency marker short-circuits a re-delivered job.
func scoreFromResults(results []model.ReviewCheckResult) int {
	outcomes := make([]checks.Outcome, len(results))
	for i, r := range results {
		outcomes[i] = checks.Outcome{
			CheckKey: r.CheckKey,
			Category: r.Category,
			Status:   r.Status,
			Severity: r.Severity,
		}
	}
	return checks.Score(outcomes)
}
