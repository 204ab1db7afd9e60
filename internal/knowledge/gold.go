package knowledge

import (
	"fmt"
	"strings"

	"github.com/reviewgate/reviewgate/internal/checks"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/privacy"
	"github.com/reviewgate/reviewgate/internal/store"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"go.uber.org/zap"
)

const (
	// DefaultMinGoldScore is the review score an MR must reach to be
	// ingested as precedent.
	DefaultMinGoldScore = 80

	// maxDiffBytesPerFile caps how much of each file's diff is stored.
	maxDiffBytesPerFile = 50 * 1024
)

// ChangedFile is one changed file as seen by ingestion.
type ChangedFile struct {
	Path    string
	OldPath string
	Diff    string
	New     bool
	Deleted bool
	Renamed bool
}

// GoldCandidate bundles everything eligibility and ingestion need about a
// completed review.
type GoldCandidate struct {
	TenantID   string
	Provider   string
	ProviderID string // "<projectID>:<iid>"
	Title      string
	Desc       string
	MRState    string
	Score      int
	Outcomes   []model.ReviewCheckResult
	Approvals  *int // nil when the host would not disclose approvals
	Changes    []ChangedFile
}

// Eligible reports whether a candidate qualifies as GOLD precedent: the MR
// is merged, the score clears minScore, no SECURITY or CODE_QUALITY check
// failed, and at least one approval exists when approval data is known.
// Unknown approvals never block ingestion.
func Eligible(c GoldCandidate, minScore int) (bool, string) {
	if minScore <= 0 {
		minScore = DefaultMinGoldScore
	}
	if c.MRState != "merged" {
		return false, "merge request is not merged"
	}
	if c.Score < minScore {
		return false, fmt.Sprintf("score %d below threshold %d", c.Score, minScore)
	}
	for _, r := range c.Outcomes {
		if r.Status != model.CheckStatusFail {
			continue
		}
		if r.Category == model.CategorySecurity || r.Category == model.CategoryCodeQuality {
			return false, fmt.Sprintf("failing %s check %s", r.Category, r.CheckKey)
		}
	}
	if c.Approvals != nil && *c.Approvals < 1 {
		return false, "no approvals"
	}
	return true, ""
}

func changeTag(c ChangedFile) string {
	switch {
	case c.New:
		return "added"
	case c.Deleted:
		return "deleted"
	case c.Renamed:
		return "renamed"
	default:
		return "modified"
	}
}

// BuildGoldContent renders the stored precedent document: MR metadata, the
// changed-file list with status tags, and per-file diffs capped at
// maxDiffBytesPerFile. Files outside the sharing policy are listed but
// their diffs are withheld.
func BuildGoldContent(c GoldCandidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "MR: %s\n", c.Title)
	if desc := strings.TrimSpace(c.Desc); desc != "" {
		sb.WriteString("\n")
		sb.WriteString(desc)
		sb.WriteString("\n")
	}

	sb.WriteString("\nFiles:\n")
	for _, ch := range c.Changes {
		fmt.Fprintf(&sb, "- %s [%s]\n", ch.Path, changeTag(ch))
	}

	for _, ch := range c.Changes {
		if ch.Deleted || ch.Diff == "" {
			continue
		}
		if !privacy.IsPathAllowed(ch.Path) {
			continue
		}
		diff, _ := privacy.Redact(ch.Diff)
		if len(diff) > maxDiffBytesPerFile {
			diff = diff[:maxDiffBytesPerFile] + "\n[diff truncated]"
		}
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", ch.Path, diff)
	}

	return sb.String()
}

// IngestGoldMR evaluates a candidate and, when eligible, upserts it into
// the knowledge base. It returns the stored source, or nil with the
// skip reason when the candidate does not qualify.
func (s *Service) IngestGoldMR(c GoldCandidate) (*model.KnowledgeSource, string, error) {
	ok, reason := Eligible(c, s.minGoldScore)
	if !ok {
		logger.Debug("gold ingest skipped",
			zap.String("providerId", c.ProviderID),
			zap.String("reason", reason))
		return nil, reason, nil
	}

	paths := make([]string, 0, len(c.Changes))
	var added []string
	for _, ch := range c.Changes {
		paths = append(paths, ch.Path)
		for _, al := range checks.AddedLines(ch.Diff) {
			added = append(added, al.Text)
		}
	}

	content := BuildGoldContent(c)
	source := &model.KnowledgeSource{
		TenantID:      c.TenantID,
		Type:          model.KnowledgeTypeGoldMR,
		Provider:      c.Provider,
		ProviderID:    c.ProviderID,
		Title:         c.Title,
		ContentText:   content,
		ContentHash:   ContentHash(content),
		FeatureTokens: model.StringArray(FeatureSignature(c.Title, c.Desc, paths, added)),
	}

	stored, created, err := s.store.Knowledge().Upsert(source)
	if err != nil {
		return nil, "", err
	}
	if created {
		logger.Info("gold precedent ingested",
			zap.String("providerId", c.ProviderID),
			zap.String("sourceId", stored.ID))
	}
	return stored, "", nil
}

// MatchesForMR computes the MR's signature and ranks the tenant's GOLD
// sources against it.
func (s *Service) MatchesForMR(tenantID, title, description string, paths, addedLines []string) ([]Match, error) {
	candidates, err := s.store.Knowledge().ListByType(tenantID, model.KnowledgeTypeGoldMR)
	if err != nil {
		return nil, err
	}
	sig := FeatureSignature(title, description, paths, addedLines)
	ptrs := make([]*model.KnowledgeSource, len(candidates))
	for i := range candidates {
		ptrs[i] = &candidates[i]
	}
	return FindMatches(sig, ptrs), nil
}

// Service wires knowledge operations to the store.
type Service struct {
	store        store.Store
	minGoldScore int
}

// NewService creates a knowledge service. minGoldScore <= 0 uses the
// default threshold.
func NewService(st store.Store, minGoldScore int) *Service {
	if minGoldScore <= 0 {
		minGoldScore = DefaultMinGoldScore
	}
	return &Service{store: st, minGoldScore: minGoldScore}
}
