// Package host abstracts the merge request host (GitLab and compatible)
// behind a small client interface: MR metadata, diffs, approvals, notes,
// and raw file access.
package host

import (
	"context"
)

// User identifies the token's account on the host.
type User struct {
	ID       int64
	Username string
	Name     string
}

// MergeRequest is the host's view of an MR.
type MergeRequest struct {
	IID          int
	Title        string
	Description  string
	State        string // opened, merged, closed, locked
	SourceBranch string
	TargetBranch string
	HeadSHA      string
	Author       string
	WebURL       string
}

// FileChange is one changed file with its unified diff.
type FileChange struct {
	OldPath string
	NewPath string
	Diff    string
	New     bool
	Deleted bool
	Renamed bool
}

// Approvals reports MR approval state. The host may withhold it entirely.
type Approvals struct {
	Approved      bool
	ApprovalCount int
}

// Client is the host-side surface the review pipeline depends on.
// Implementations classify upstream failures with pkg/errors codes and
// attach the upstream HTTP status where one exists.
type Client interface {
	// GetUser validates the configured token.
	GetUser(ctx context.Context) (*User, error)

	GetMergeRequest(ctx context.Context, projectID string, iid int) (*MergeRequest, error)

	// GetMergeRequestChanges fetches all file diffs, paginated.
	GetMergeRequestChanges(ctx context.Context, projectID string, iid int) ([]FileChange, error)

	// GetMergeRequestApprovals returns (nil, nil) when the host answers
	// 403 or 404: approval data is then unknown, not an error.
	GetMergeRequestApprovals(ctx context.Context, projectID string, iid int) (*Approvals, error)

	// CreateMergeRequestNote posts a comment and returns its note id.
	CreateMergeRequestNote(ctx context.Context, projectID string, iid int, body string) (int64, error)

	UpdateMergeRequestNote(ctx context.Context, projectID string, iid int, noteID int64, body string) error

	// GetProjectFileRaw reads one file at a ref.
	GetProjectFileRaw(ctx context.Context, projectID, path, ref string) ([]byte, error)
}
