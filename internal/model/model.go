// Package model defines the data models for the application.
// All models use GORM for ORM operations with SQLite database.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// StringArray is a custom type for storing string arrays in SQLite
type StringArray []string

// Value implements driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, s)
}

// JSONMap is a custom type for storing JSON maps in SQLite
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, j)
}

// FileRef points a suggestion at a file region
type FileRef struct {
	Path      string `json:"path"`
	LineStart int    `json:"lineStart,omitempty"`
	LineEnd   int    `json:"lineEnd,omitempty"`
}

// FileRefList is a custom type for storing file references in SQLite
type FileRefList []FileRef

// Value implements driver.Valuer interface
func (f FileRefList) Value() (driver.Value, error) {
	if len(f) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(f)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (f *FileRefList) Scan(value interface{}) error {
	if value == nil {
		*f = FileRefList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, f)
}

// RunStatus represents the status of a review run
type RunStatus string

const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// IsTerminal reports whether the status is a terminal state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// CheckStatus represents the verdict of a deterministic check
type CheckStatus string

const (
	CheckStatusPass CheckStatus = "PASS"
	CheckStatusWarn CheckStatus = "WARN"
	CheckStatusFail CheckStatus = "FAIL"
)

// Severity represents the severity of a check result or suggestion
type Severity string

const (
	SeverityBlocker Severity = "BLOCKER"
	SeverityWarn    Severity = "WARN"
	SeverityInfo    Severity = "INFO"
)

// CheckCategory groups checks for scoring and ranking
type CheckCategory string

const (
	CategorySecurity      CheckCategory = "SECURITY"
	CategoryCodeQuality   CheckCategory = "CODE_QUALITY"
	CategoryArchitecture  CheckCategory = "ARCHITECTURE"
	CategoryPerformance   CheckCategory = "PERFORMANCE"
	CategoryTesting       CheckCategory = "TESTING"
	CategoryObservability CheckCategory = "OBSERVABILITY"
	CategoryRepoHygiene   CheckCategory = "REPO_HYGIENE"
)

// CommentType distinguishes posted comment kinds
type CommentType string

const (
	// CommentTypeSummary is the single summary note the worker owns on an MR
	CommentTypeSummary CommentType = "SUMMARY"
)

// KnowledgeType distinguishes knowledge source kinds
type KnowledgeType string

const (
	KnowledgeTypeGoldMR KnowledgeType = "GOLD_MR"
	KnowledgeTypeDoc    KnowledgeType = "DOC"
)

// Tenant is the externally visible namespace all entities belong to
type Tenant struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Slug string `gorm:"size:100;not null;uniqueIndex" json:"slug"`

	// WebhookSecrets maps provider name to shared webhook secret
	WebhookSecrets JSONMap `gorm:"type:json" json:"-"`
}

// WebhookSecret returns the shared secret configured for a provider
func (t *Tenant) WebhookSecret(provider string) string {
	if t.WebhookSecrets == nil {
		return ""
	}
	if s, ok := t.WebhookSecrets[provider].(string); ok {
		return s
	}
	return ""
}

// Repository is a code-host project watched by a tenant
type Repository struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	TenantID       string `gorm:"size:20;not null;index;uniqueIndex:idx_repo_identity,priority:1" json:"tenant_id"`
	Provider       string `gorm:"size:50;not null;uniqueIndex:idx_repo_identity,priority:2" json:"provider"`
	ProviderRepoID string `gorm:"size:100;not null;uniqueIndex:idx_repo_identity,priority:3" json:"provider_repo_id"`

	Namespace     string `gorm:"size:255" json:"namespace"`
	Name          string `gorm:"size:255" json:"name"`
	DefaultBranch string `gorm:"size:255" json:"default_branch"`
}

// MergeRequest mirrors the code-host MR state the intake has observed
type MergeRequest struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	TenantID     string `gorm:"size:20;not null;index;uniqueIndex:idx_mr_identity,priority:1" json:"tenant_id"`
	RepositoryID string `gorm:"size:20;not null;index;uniqueIndex:idx_mr_identity,priority:2" json:"repository_id"`
	IID          int    `gorm:"column:iid;not null;uniqueIndex:idx_mr_identity,priority:3" json:"iid"` // provider-assigned

	Title        string `gorm:"size:1024" json:"title"`
	Author       string `gorm:"size:255" json:"author"`
	SourceBranch string `gorm:"size:255" json:"source_branch"`
	TargetBranch string `gorm:"size:255" json:"target_branch"`
	State        string `gorm:"size:50" json:"state"`
	WebURL       string `gorm:"size:1024" json:"web_url"`
	LastSeenSHA  string `gorm:"size:64;index" json:"last_seen_sha"`

	Repository Repository `json:"-"`
}

// ReviewRun is one execution of the review pipeline against (MR, headSha)
type ReviewRun struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `gorm:"index:idx_run_listing,priority:2,sort:desc" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	TenantID       string `gorm:"size:20;not null;index:idx_run_listing,priority:1" json:"tenant_id"`
	MergeRequestID string `gorm:"size:20;not null;index" json:"merge_request_id"`
	HeadSHA        string `gorm:"size:64;not null;index" json:"head_sha"`

	Status          RunStatus `gorm:"size:20;not null;default:QUEUED;index" json:"status"`
	Phase           string    `gorm:"size:100" json:"phase,omitempty"`
	ProgressMessage string    `gorm:"size:1024" json:"progress_message,omitempty"`

	Score   *int   `json:"score,omitempty"`
	Summary string `gorm:"size:1024" json:"summary,omitempty"`
	Error   string `gorm:"type:text" json:"error,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	MergeRequest MergeRequest `json:"-"`
}

// ReviewCheckResult is one check verdict for a run. The presence of any row
// for a run is the worker's idempotency marker: checks already executed.
type ReviewCheckResult struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID    string `gorm:"size:20;not null;index" json:"tenant_id"`
	ReviewRunID string `gorm:"size:20;not null;index;uniqueIndex:idx_result_identity,priority:1" json:"review_run_id"`
	CheckKey    string `gorm:"size:100;not null;uniqueIndex:idx_result_identity,priority:2" json:"check_key"`

	Category CheckCategory `gorm:"size:50;not null" json:"category"`
	Status   CheckStatus   `gorm:"size:20;not null" json:"status"`
	Severity Severity      `gorm:"size:20;not null" json:"severity"`

	Message   string `gorm:"size:2048" json:"message"`
	FilePath  string `gorm:"size:1024" json:"file_path,omitempty"`
	LineStart int    `json:"line_start,omitempty"`
	LineEnd   int    `json:"line_end,omitempty"`
	Evidence  string `gorm:"type:text" json:"evidence,omitempty"`

	ReviewRun ReviewRun `json:"-"`
}

// AiSuggestion is one normalized LLM fix suggestion for a run
type AiSuggestion struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID    string `gorm:"size:20;not null;index" json:"tenant_id"`
	ReviewRunID string `gorm:"size:20;not null;index" json:"review_run_id"`
	CheckKey    string `gorm:"size:100" json:"check_key,omitempty"`

	Severity  Severity `gorm:"size:20" json:"severity"`
	Title     string   `gorm:"size:1024" json:"title"`
	Rationale string   `gorm:"type:text" json:"rationale"`
	// SuggestedFix is always a string after normalization
	SuggestedFix string      `gorm:"type:text" json:"suggested_fix"`
	Files        FileRefList `gorm:"type:json" json:"files"`
}

// PostedComment records a note the worker owns on the code host.
// At most one SUMMARY comment exists per review run.
type PostedComment struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID    string      `gorm:"size:20;not null;index" json:"tenant_id"`
	ReviewRunID string      `gorm:"size:20;not null;uniqueIndex:idx_comment_identity,priority:1" json:"review_run_id"`
	Type        CommentType `gorm:"size:20;not null;default:SUMMARY;uniqueIndex:idx_comment_identity,priority:2" json:"type"`

	Provider   string `gorm:"size:50;not null" json:"provider"`
	ProviderID string `gorm:"size:100;not null" json:"provider_id"` // note id on the host

	Body          string `gorm:"type:text" json:"body"`
	AiIncluded    bool   `gorm:"default:false" json:"ai_included"`
	AiSummaryHash string `gorm:"size:64" json:"ai_summary_hash,omitempty"`
}

// KnowledgeSource is a GOLD precedent or ingested document.
// contentHash uniquely identifies content within a tenant.
type KnowledgeSource struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID string        `gorm:"size:20;not null;index:idx_knowledge_logical,priority:1;uniqueIndex:idx_knowledge_content,priority:1" json:"tenant_id"`
	Type     KnowledgeType `gorm:"size:20;not null;index:idx_knowledge_logical,priority:2" json:"type"`

	Provider   string `gorm:"size:50;index:idx_knowledge_logical,priority:3" json:"provider,omitempty"`
	ProviderID string `gorm:"size:100;index:idx_knowledge_logical,priority:4" json:"provider_id,omitempty"`

	Title       string `gorm:"size:1024" json:"title"`
	SourceURL   string `gorm:"size:1024" json:"source_url,omitempty"`
	ContentText string `gorm:"type:text" json:"content_text"`
	ContentHash string `gorm:"size:64;not null;uniqueIndex:idx_knowledge_content,priority:2" json:"content_hash"`

	Metadata      JSONMap     `gorm:"type:json" json:"metadata,omitempty"`
	FeatureTokens StringArray `gorm:"type:json" json:"feature_tokens"`
}

// TenantAiConfig gates and bounds LLM augmentation per tenant
type TenantAiConfig struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID string `gorm:"size:20;not null;uniqueIndex" json:"tenant_id"`

	Enabled  bool   `gorm:"default:false" json:"enabled"`
	Provider string `gorm:"size:50" json:"provider"`
	Model    string `gorm:"size:100" json:"model"`

	MaxSuggestions    int `gorm:"default:5" json:"max_suggestions"`
	MaxPromptChars    int `gorm:"default:12000" json:"max_prompt_chars"`
	MaxTotalDiffBytes int `gorm:"default:1048576" json:"max_total_diff_bytes"`
}

// CheckConfig is a per-tenant overlay over the built-in check registry
type CheckConfig struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID string `gorm:"size:20;not null;uniqueIndex:idx_check_config,priority:1" json:"tenant_id"`
	CheckKey string `gorm:"size:100;not null;uniqueIndex:idx_check_config,priority:2" json:"check_key"`

	Enabled          bool     `gorm:"default:true" json:"enabled"`
	SeverityOverride Severity `gorm:"size:20" json:"severity_override,omitempty"`
	Thresholds       JSONMap  `gorm:"type:json" json:"thresholds,omitempty"`
}

// AllModels returns all models for auto-migration
func AllModels() []interface{} {
	return []interface{}{
		&Tenant{},
		&Repository{},
		&MergeRequest{},
		&ReviewRun{},
		&ReviewCheckResult{},
		&AiSuggestion{},
		&PostedComment{},
		&KnowledgeSource{},
		&TenantAiConfig{},
		&CheckConfig{},
		&QueueJob{},
	}
}
