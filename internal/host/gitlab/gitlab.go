// Package gitlab implements the host client against GitLab, SaaS or
// self-hosted, using the official API client library.
package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"

	"github.com/reviewgate/reviewgate/internal/host"
	"github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/logger"
)

const (
	defaultBaseURL = "https://gitlab.com"
	defaultPerPage = 100

	// requestTimeout bounds ordinary API calls; diff listing gets a
	// longer budget because it pages through file contents.
	requestTimeout = 10 * time.Second
	diffTimeout    = 30 * time.Second

	retryMax     = 3
	retryWaitMin = 1 * time.Second
	retryWaitMax = 10 * time.Second
)

// Config configures the GitLab host client.
type Config struct {
	BaseURL string
	Token   string
}

// HostClient implements host.Client for GitLab.
type HostClient struct {
	client  *gitlab.Client
	baseURL string
}

// New creates a GitLab host client. Retries for 429 and 5xx responses are
// handled by the underlying library with exponential backoff; Retry-After
// headers are honored.
func New(cfg Config) (*HostClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	clientOpts := []gitlab.ClientOptionFunc{
		gitlab.WithCustomRetryMax(retryMax),
		gitlab.WithCustomRetryWaitMinMax(retryWaitMin, retryWaitMax),
	}
	if baseURL != defaultBaseURL {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(baseURL))
	}

	client, err := gitlab.NewClient(cfg.Token, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHostTransport, "failed to create gitlab client", err)
	}

	logger.Info("gitlab host client initialized", zap.String("base_url", baseURL))
	return &HostClient{client: client, baseURL: baseURL}, nil
}

// classify maps a client-go failure into an AppError carrying the
// upstream status. Credentials never appear in the error chain.
func classify(op string, resp *gitlab.Response, err error) *errors.AppError {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.New(errors.ErrCodeHostAuth, op+" rejected by host").WithStatusCode(status)
	case status == http.StatusNotFound:
		return errors.New(errors.ErrCodeHostNotFound, op+" target not found").WithStatusCode(status)
	case status == http.StatusTooManyRequests:
		return errors.New(errors.ErrCodeHostRateLimit, op+" rate limited").WithStatusCode(status)
	case status >= 500:
		return errors.New(errors.ErrCodeHostTransport,
			fmt.Sprintf("%s failed with status %d", op, status)).WithStatusCode(status)
	case err != nil && err == context.DeadlineExceeded:
		return errors.New(errors.ErrCodeHostTimeout, op+" timed out")
	default:
		appErr := errors.Wrap(errors.ErrCodeHostTransport, op+" failed", err)
		if status > 0 {
			appErr = appErr.WithStatusCode(status)
		}
		return appErr
	}
}

// GetUser validates the token against /user.
func (c *HostClient) GetUser(ctx context.Context) (*host.User, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	user, resp, err := c.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return nil, classify("get user", resp, err)
	}
	return &host.User{
		ID:       user.ID,
		Username: user.Username,
		Name:     user.Name,
	}, nil
}

// GetMergeRequest fetches MR metadata.
func (c *HostClient) GetMergeRequest(ctx context.Context, projectID string, iid int) (*host.MergeRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	mr, resp, err := c.client.MergeRequests.GetMergeRequest(projectID, int64(iid), nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, classify("get merge request", resp, err)
	}

	return &host.MergeRequest{
		IID:          int(mr.IID),
		Title:        mr.Title,
		Description:  mr.Description,
		State:        mr.State,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		HeadSHA:      mr.SHA,
		Author:       mr.Author.Username,
		WebURL:       mr.WebURL,
	}, nil
}

// GetMergeRequestChanges pages through the MR's file diffs.
func (c *HostClient) GetMergeRequestChanges(ctx context.Context, projectID string, iid int) ([]host.FileChange, error) {
	ctx, cancel := context.WithTimeout(ctx, diffTimeout)
	defer cancel()

	var changes []host.FileChange
	page := 1
	for {
		diffs, resp, err := c.client.MergeRequests.ListMergeRequestDiffs(projectID, int64(iid), &gitlab.ListMergeRequestDiffsOptions{
			ListOptions: gitlab.ListOptions{Page: int64(page), PerPage: defaultPerPage},
		}, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classify("list merge request diffs", resp, err)
		}

		for _, d := range diffs {
			changes = append(changes, host.FileChange{
				OldPath: d.OldPath,
				NewPath: d.NewPath,
				Diff:    d.Diff,
				New:     d.NewFile,
				Deleted: d.DeletedFile,
				Renamed: d.RenamedFile,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		page = int(resp.NextPage)
	}

	logger.Debug("merge request diffs fetched",
		zap.String("project_id", projectID),
		zap.Int("mr_iid", iid),
		zap.Int("files", len(changes)))
	return changes, nil
}

// GetMergeRequestApprovals reads approval state. A 403 or 404 means the
// instance withholds approval data; that is reported as (nil, nil).
func (c *HostClient) GetMergeRequestApprovals(ctx context.Context, projectID string, iid int) (*host.Approvals, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	approvals, resp, err := c.client.MergeRequestApprovals.GetConfiguration(projectID, int64(iid), gitlab.WithContext(ctx))
	if err != nil {
		appErr := classify("get approvals", resp, err)
		if appErr.StatusCode == http.StatusForbidden || appErr.StatusCode == http.StatusNotFound {
			logger.Debug("approval data unavailable",
				zap.String("project_id", projectID),
				zap.Int("mr_iid", iid),
				zap.Int("status", appErr.StatusCode))
			return nil, nil
		}
		return nil, appErr
	}

	return &host.Approvals{
		Approved:      approvals.Approved,
		ApprovalCount: len(approvals.ApprovedBy),
	}, nil
}

// CreateMergeRequestNote posts a comment on the MR.
func (c *HostClient) CreateMergeRequestNote(ctx context.Context, projectID string, iid int, body string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	note, resp, err := c.client.Notes.CreateMergeRequestNote(projectID, int64(iid), &gitlab.CreateMergeRequestNoteOptions{
		Body: &body,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, classify("create note", resp, err)
	}

	logger.Info("merge request note created",
		zap.String("project_id", projectID),
		zap.Int("mr_iid", iid),
		zap.Int64("note_id", note.ID))
	return note.ID, nil
}

// UpdateMergeRequestNote edits an existing comment in place.
func (c *HostClient) UpdateMergeRequestNote(ctx context.Context, projectID string, iid int, noteID int64, body string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	_, resp, err := c.client.Notes.UpdateMergeRequestNote(projectID, int64(iid), noteID, &gitlab.UpdateMergeRequestNoteOptions{
		Body: &body,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return classify("update note", resp, err)
	}

	logger.Info("merge request note updated",
		zap.String("project_id", projectID),
		zap.Int("mr_iid", iid),
		zap.Int64("note_id", noteID))
	return nil
}

// GetProjectFileRaw reads one repository file at a ref.
func (c *HostClient) GetProjectFileRaw(ctx context.Context, projectID, path, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	data, resp, err := c.client.RepositoryFiles.GetRawFile(projectID, path, &gitlab.GetRawFileOptions{
		Ref: &ref,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, classify("get raw file", resp, err)
	}
	return data, nil
}
