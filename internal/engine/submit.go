package engine

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/host"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/queue"
	"github.com/reviewgate/reviewgate/internal/store"
	"github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"github.com/reviewgate/reviewgate/pkg/telemetry"
)

// Intake turns accepted webhook events and API triggers into queued review
// runs. It owns the dedup rules: one run per (MR, headSha), a failed run on
// the same SHA is reset in place, and a changed SHA always gets a fresh run.
type Intake struct {
	store store.Store
	queue queue.Queue
	host  host.Client
}

// NewIntake builds the intake service.
func NewIntake(st store.Store, q queue.Queue, h host.Client) *Intake {
	return &Intake{store: st, queue: q, host: h}
}

// MRUpdate is the normalized shape of an MR event entering the system.
type MRUpdate struct {
	Provider        string
	ProjectID       string
	Namespace       string
	RepoName        string
	DefaultBranch   string
	IID             int
	Title           string
	Author          string
	SourceBranch    string
	TargetBranch    string
	State           string
	WebURL          string
	HeadSHA         string
	MergedCandidate bool
}

// SubmitResult reports what intake did with an event.
type SubmitResult struct {
	ReviewRunID string
	JobID       string
	Created     bool
}

// Submit records the MR state and enqueues a review run for its head SHA.
// A SHA already covered by a queued, running, or succeeded run is absorbed;
// one covered only by a failed run is reset and re-enqueued under the same
// run id.
func (in *Intake) Submit(ctx context.Context, tenant *model.Tenant, upd MRUpdate) (*SubmitResult, error) {
	if upd.HeadSHA == "" {
		return nil, errors.New(errors.ErrCodeValidation, "merge request event carries no head sha")
	}

	mr, err := in.recordMR(tenant, upd)
	if err != nil {
		return nil, err
	}

	runs := in.store.Run()
	latest, err := runs.GetLatestForSHA(tenant.ID, mr.ID, upd.HeadSHA)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "look up runs for head sha", err)
	}

	if latest != nil {
		switch latest.Status {
		case model.RunStatusQueued:
			// Covered, unless the run's job was lost or finished without
			// settling the run. Re-enqueueing is safe: the worker's
			// idempotency marker makes a double delivery converge.
			jobID := in.jobID(tenant, upd, "")
			job, jobErr := in.queue.GetJob(ctx, jobID)
			if jobErr != nil {
				return nil, jobErr
			}
			if job == nil || job.Finished() {
				return in.enqueue(ctx, tenant, upd, mr, latest.ID, "")
			}
			return &SubmitResult{ReviewRunID: latest.ID, JobID: jobID, Created: false}, nil
		case model.RunStatusRunning, model.RunStatusSucceeded:
			// Already covered; hand back the existing identifiers.
			jobID := in.jobID(tenant, upd, "")
			return &SubmitResult{ReviewRunID: latest.ID, JobID: jobID, Created: false}, nil
		case model.RunStatusFailed:
			reset, resetErr := runs.ResetForRetry(latest.ID)
			if resetErr != nil {
				return nil, errors.Wrap(errors.ErrCodeDBQuery, "reset failed run", resetErr)
			}
			if reset {
				return in.enqueue(ctx, tenant, upd, mr, latest.ID, "")
			}
			// Lost a race with another intake path; treat as covered.
			return &SubmitResult{ReviewRunID: latest.ID, JobID: in.jobID(tenant, upd, ""), Created: false}, nil
		}
	}

	run := &model.ReviewRun{
		TenantID:       tenant.ID,
		MergeRequestID: mr.ID,
		HeadSHA:        upd.HeadSHA,
		Status:         model.RunStatusQueued,
	}
	if err := runs.Create(run); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "create review run", err)
	}
	return in.enqueue(ctx, tenant, upd, mr, run.ID, "")
}

// Retry resets a failed run and re-enqueues it under the same run id.
func (in *Intake) Retry(ctx context.Context, tenant *model.Tenant, runID string) (*SubmitResult, error) {
	runs := in.store.Run()
	run, err := runs.GetByID(runID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New(errors.ErrCodeRunNotFound, "review run not found: "+runID)
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "load review run", err)
	}
	if run.TenantID != tenant.ID {
		return nil, errors.New(errors.ErrCodeRunNotFound, "review run not found: "+runID)
	}
	if run.Status != model.RunStatusFailed {
		return nil, errors.New(errors.ErrCodeRunNotRetryable,
			"only failed runs can be retried, run is "+string(run.Status))
	}

	reset, err := runs.ResetForRetry(run.ID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "reset failed run", err)
	}
	if !reset {
		return nil, errors.New(errors.ErrCodeRunNotRetryable, "run is no longer failed")
	}

	mr, err := in.store.Repo().GetMergeRequestByID(run.MergeRequestID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "load merge request", err)
	}
	repo, err := in.store.Repo().GetRepositoryByID(mr.RepositoryID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "load repository", err)
	}

	upd := MRUpdate{
		Provider:  repo.Provider,
		ProjectID: repo.ProviderRepoID,
		IID:       mr.IID,
		Title:     mr.Title,
		HeadSHA:   run.HeadSHA,
		State:     mr.State,
	}
	// The run id is part of the job id so the retry never collides with a
	// pending webhook job for the same SHA.
	return in.enqueue(ctx, tenant, upd, mr, run.ID, run.ID)
}

// Trigger starts a review on demand: the MR is fetched fresh from the host,
// recorded, and enqueued as a new run regardless of prior coverage.
func (in *Intake) Trigger(ctx context.Context, tenant *model.Tenant, provider, projectID string, iid int) (*SubmitResult, error) {
	hostMR, err := in.host.GetMergeRequest(ctx, projectID, iid)
	if err != nil {
		return nil, err
	}
	if hostMR.HeadSHA == "" {
		return nil, errors.New(errors.ErrCodeValidation, "merge request has no head sha")
	}

	upd := MRUpdate{
		Provider:        provider,
		ProjectID:       projectID,
		IID:             iid,
		Title:           hostMR.Title,
		Author:          hostMR.Author,
		SourceBranch:    hostMR.SourceBranch,
		TargetBranch:    hostMR.TargetBranch,
		State:           hostMR.State,
		WebURL:          hostMR.WebURL,
		HeadSHA:         hostMR.HeadSHA,
		MergedCandidate: hostMR.State == "merged",
	}
	mr, err := in.recordMR(tenant, upd)
	if err != nil {
		return nil, err
	}

	run := &model.ReviewRun{
		TenantID:       tenant.ID,
		MergeRequestID: mr.ID,
		HeadSHA:        upd.HeadSHA,
		Status:         model.RunStatusQueued,
	}
	if err := in.store.Run().Create(run); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "create review run", err)
	}
	return in.enqueue(ctx, tenant, upd, mr, run.ID, run.ID)
}

// recordMR upserts the repository and MR rows from an event.
func (in *Intake) recordMR(tenant *model.Tenant, upd MRUpdate) (*model.MergeRequest, error) {
	repos := in.store.Repo()
	repo, err := repos.UpsertRepository(&model.Repository{
		TenantID:       tenant.ID,
		Provider:       upd.Provider,
		ProviderRepoID: upd.ProjectID,
		Namespace:      upd.Namespace,
		Name:           upd.RepoName,
		DefaultBranch:  upd.DefaultBranch,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "upsert repository", err)
	}

	mr, err := repos.UpsertMergeRequest(&model.MergeRequest{
		TenantID:     tenant.ID,
		RepositoryID: repo.ID,
		IID:          upd.IID,
		Title:        upd.Title,
		Author:       upd.Author,
		SourceBranch: upd.SourceBranch,
		TargetBranch: upd.TargetBranch,
		State:        upd.State,
		WebURL:       upd.WebURL,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "upsert merge request", err)
	}
	return mr, nil
}

func (in *Intake) jobID(tenant *model.Tenant, upd MRUpdate, runSuffix string) string {
	return queue.JobIdentity{
		TenantSlug:  tenant.Slug,
		Provider:    upd.Provider,
		ProjectID:   upd.ProjectID,
		MRIID:       upd.IID,
		HeadSHA:     upd.HeadSHA,
		ReviewRunID: runSuffix,
	}.String()
}

func (in *Intake) enqueue(ctx context.Context, tenant *model.Tenant, upd MRUpdate, mr *model.MergeRequest, runID, runSuffix string) (*SubmitResult, error) {
	if err := in.store.Repo().UpdateLastSeenSHA(mr.ID, upd.HeadSHA); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "update last seen sha", err)
	}

	jobID := in.jobID(tenant, upd, runSuffix)
	payload := queue.Payload{
		TenantID:        tenant.ID,
		TenantSlug:      tenant.Slug,
		Provider:        upd.Provider,
		ProjectID:       upd.ProjectID,
		MRIID:           upd.IID,
		HeadSHA:         upd.HeadSHA,
		ReviewRunID:     runID,
		Title:           upd.Title,
		MergedCandidate: upd.MergedCandidate,
		Manual:          runSuffix != "",
	}
	created, err := in.queue.Enqueue(ctx, jobID, payload)
	if err != nil {
		return nil, err
	}
	if created {
		telemetry.GetMetrics().RecordQueueDepthDelta(ctx, 1)
	}
	logger.Info("review run enqueued",
		zap.String("run_id", runID),
		zap.String("job_id", jobID),
		zap.Bool("created", created))
	return &SubmitResult{ReviewRunID: runID, JobID: jobID, Created: created}, nil
}
