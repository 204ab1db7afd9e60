package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/reviewgate/reviewgate/internal/host"
	hostmock "github.com/reviewgate/reviewgate/internal/host/mock"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/queue"
	"github.com/reviewgate/reviewgate/internal/store"
	"github.com/reviewgate/reviewgate/pkg/errors"
)

func newTestIntake(t *testing.T) (*Intake, store.Store, *queue.DBQueue, *hostmock.Client, func()) {
	t.Helper()
	s, cleanup := store.SetupTestDB(t)
	q := queue.NewDBQueue(s.DB())
	h := hostmock.NewClient()
	return NewIntake(s, q, h), s, q, h, cleanup
}

func update(sha string) MRUpdate {
	return MRUpdate{
		Provider:     "gitlab",
		ProjectID:    testProjectID,
		Namespace:    "acme",
		RepoName:     "shop",
		IID:          2,
		Title:        "Add checkout flow",
		Author:       "dev1",
		SourceBranch: "feature/checkout",
		TargetBranch: "main",
		State:        "opened",
		HeadSHA:      sha,
	}
}

func TestSubmitFreshRun(t *testing.T) {
	in, s, q, _, cleanup := newTestIntake(t)
	defer cleanup()
	ctx := context.Background()
	tenant := store.CreateTestTenant(t, s, "acme")

	res, err := in.Submit(ctx, tenant, update("sha1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.ReviewRunID == "" || !res.Created {
		t.Fatalf("Submit() = %+v, want a freshly created run", res)
	}
	if res.JobID != "acme__gitlab__"+testProjectID+"__2__sha1" {
		t.Errorf("job id = %q", res.JobID)
	}

	run, err := s.Run().GetByID(res.ReviewRunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != model.RunStatusQueued {
		t.Errorf("run status = %s, want QUEUED", run.Status)
	}

	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}

	repo, err := s.Repo().GetRepositoryByProviderID(tenant.ID, "gitlab", testProjectID)
	if err != nil {
		t.Fatal(err)
	}
	mr, err := s.Repo().GetMergeRequestByIID(tenant.ID, repo.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if mr.LastSeenSHA != "sha1" {
		t.Errorf("LastSeenSHA = %q, want sha1", mr.LastSeenSHA)
	}
}

func TestSubmitSameSHAAbsorbed(t *testing.T) {
	in, s, q, _, cleanup := newTestIntake(t)
	defer cleanup()
	ctx := context.Background()
	tenant := store.CreateTestTenant(t, s, "acme")

	first, err := in.Submit(ctx, tenant, update("sha1"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := in.Submit(ctx, tenant, update("sha1"))
	if err != nil {
		t.Fatal(err)
	}

	if second.ReviewRunID != first.ReviewRunID {
		t.Errorf("duplicate delivery created a new run: %s vs %s", second.ReviewRunID, first.ReviewRunID)
	}
	if second.Created {
		t.Error("duplicate delivery reported as created")
	}
	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}
}

func TestSubmitReenqueuesWhenJobLost(t *testing.T) {
	in, s, q, _, cleanup := newTestIntake(t)
	defer cleanup()
	ctx := context.Background()
	tenant := store.CreateTestTenant(t, s, "acme")

	first, err := in.Submit(ctx, tenant, update("sha1"))
	if err != nil {
		t.Fatal(err)
	}

	// The job finishes without settling the run (crash between ack and
	// status write). The run is still QUEUED but nothing will pick it up.
	if _, err := q.Lease(ctx, "w1", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := q.Ack(ctx, first.JobID); err != nil {
		t.Fatal(err)
	}

	second, err := in.Submit(ctx, tenant, update("sha1"))
	if err != nil {
		t.Fatal(err)
	}
	if second.ReviewRunID != first.ReviewRunID {
		t.Errorf("re-enqueue created a new run: %s vs %s", second.ReviewRunID, first.ReviewRunID)
	}
	if !second.Created {
		t.Error("lost job was not re-enqueued")
	}
	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}
}

func TestSubmitNewSHACreatesNewRun(t *testing.T) {
	in, s, q, _, cleanup := newTestIntake(t)
	defer cleanup()
	ctx := context.Background()
	tenant := store.CreateTestTenant(t, s, "acme")

	first, err := in.Submit(ctx, tenant, update("sha1"))
	if err != nil {
		t.Fatal(err)
	}
	// The MR moved while the first review was still pending.
	second, err := in.Submit(ctx, tenant, update("sha2"))
	if err != nil {
		t.Fatal(err)
	}

	if second.ReviewRunID == first.ReviewRunID {
		t.Error("new head SHA reused the old run")
	}
	if !second.Created {
		t.Error("new head SHA did not create a run")
	}
	depth, _ := q.Depth(ctx)
	if depth != 2 {
		t.Errorf("queue depth = %d, want 2 independent jobs", depth)
	}

	repo, _ := s.Repo().GetRepositoryByProviderID(tenant.ID, "gitlab", testProjectID)
	mr, _ := s.Repo().GetMergeRequestByIID(tenant.ID, repo.ID, 2)
	if mr.LastSeenSHA != "sha2" {
		t.Errorf("LastSeenSHA = %q, want sha2", mr.LastSeenSHA)
	}
}

func TestSubmitResetsFailedRunInPlace(t *testing.T) {
	in, s, q, _, cleanup := newTestIntake(t)
	defer cleanup()
	ctx := context.Background()
	tenant := store.CreateTestTenant(t, s, "acme")

	first, err := in.Submit(ctx, tenant, update("sha1"))
	if err != nil {
		t.Fatal(err)
	}

	// Drain the job and fail the run, as a crashed worker would leave it.
	job, _ := q.Lease(ctx, "w1", time.Minute)
	if job == nil {
		t.Fatal("no job leased")
	}
	if err := q.Ack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Run().MarkFailed(first.ReviewRunID, "gitlab api returned 503"); err != nil {
		t.Fatal(err)
	}

	// The same SHA delivered again resets the failed run, not a new one.
	res, err := in.Submit(ctx, tenant, update("sha1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.ReviewRunID != first.ReviewRunID {
		t.Errorf("redelivery created run %s, want reset of %s", res.ReviewRunID, first.ReviewRunID)
	}

	run, _ := s.Run().GetByID(first.ReviewRunID)
	if run.Status != model.RunStatusQueued {
		t.Errorf("run status = %s, want QUEUED after reset", run.Status)
	}
	if run.Error != "" {
		t.Errorf("run error = %q, want cleared", run.Error)
	}
	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Errorf("queue depth = %d, want the job re-enqueued", depth)
	}
}

func TestSubmitRequiresHeadSHA(t *testing.T) {
	in, s, _, _, cleanup := newTestIntake(t)
	defer cleanup()
	tenant := store.CreateTestTenant(t, s, "acme")

	_, err := in.Submit(context.Background(), tenant, update(""))
	if err == nil {
		t.Fatal("Submit() accepted an event without a head sha")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeValidation {
		t.Errorf("error = %v, want validation failure", err)
	}
}

func TestRetryRequiresFailedRun(t *testing.T) {
	in, s, _, _, cleanup := newTestIntake(t)
	defer cleanup()
	tenant := store.CreateTestTenant(t, s, "acme")
	_, mr := store.CreateTestMR(t, s, tenant.ID, 2)
	run := store.CreateTestRun(t, s, tenant.ID, mr.ID, "sha1")

	_, err := in.Retry(context.Background(), tenant, run.ID)
	if err == nil {
		t.Fatal("Retry() accepted a QUEUED run")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeRunNotRetryable {
		t.Errorf("error = %v, want run-not-retryable", err)
	}
}

func TestRetryFailedRun(t *testing.T) {
	in, s, q, _, cleanup := newTestIntake(t)
	defer cleanup()
	ctx := context.Background()
	tenant := store.CreateTestTenant(t, s, "acme")
	_, mr := store.CreateTestMR(t, s, tenant.ID, 2)
	run := store.CreateTestRun(t, s, tenant.ID, mr.ID, "sha1")
	if err := s.Run().MarkFailed(run.ID, "gitlab api returned 500"); err != nil {
		t.Fatal(err)
	}

	res, err := in.Retry(ctx, tenant, run.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if res.ReviewRunID != run.ID {
		t.Errorf("retry run id = %s, want the original %s", res.ReviewRunID, run.ID)
	}
	if !strings.HasSuffix(res.JobID, "__"+run.ID) {
		t.Errorf("retry job id %q does not carry the run id", res.JobID)
	}

	got, _ := s.Run().GetByID(run.ID)
	if got.Status != model.RunStatusQueued {
		t.Errorf("status = %s, want QUEUED", got.Status)
	}
	if got.Error != "" || got.Score != nil {
		t.Errorf("derived fields not cleared: error=%q score=%v", got.Error, got.Score)
	}

	job, _ := q.Lease(ctx, "w1", time.Minute)
	if job == nil {
		t.Fatal("retry did not enqueue a job")
	}
	if job.Payload.ReviewRunID != run.ID || !job.Payload.Manual {
		t.Errorf("payload = %+v", job.Payload)
	}
}

func TestRetryUnknownRun(t *testing.T) {
	in, s, _, _, cleanup := newTestIntake(t)
	defer cleanup()
	tenant := store.CreateTestTenant(t, s, "acme")

	_, err := in.Retry(context.Background(), tenant, "missing")
	if err == nil {
		t.Fatal("Retry() accepted an unknown run")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeRunNotFound {
		t.Errorf("error = %v, want run-not-found", err)
	}
}

func TestTriggerFetchesFromHost(t *testing.T) {
	in, s, q, h, cleanup := newTestIntake(t)
	defer cleanup()
	ctx := context.Background()
	tenant := store.CreateTestTenant(t, s, "acme")

	h.SetMR(testProjectID, &host.MergeRequest{
		IID:          5,
		Title:        "Tighten rate limits",
		State:        "opened",
		SourceBranch: "feature/limits",
		TargetBranch: "main",
		HeadSHA:      "shaT",
		Author:       "dev2",
	}, nil)

	res, err := in.Trigger(ctx, tenant, "gitlab", testProjectID, 5)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if !res.Created {
		t.Error("trigger did not create a run")
	}

	run, err := s.Run().GetByID(res.ReviewRunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.HeadSHA != "shaT" {
		t.Errorf("run head sha = %q, want the host's shaT", run.HeadSHA)
	}

	job, _ := q.Lease(ctx, "w1", time.Minute)
	if job == nil {
		t.Fatal("trigger did not enqueue a job")
	}
	if !job.Payload.Manual || job.Payload.MRIID != 5 {
		t.Errorf("payload = %+v", job.Payload)
	}
}

func TestTriggerUnknownMR(t *testing.T) {
	in, s, _, _, cleanup := newTestIntake(t)
	defer cleanup()
	tenant := store.CreateTestTenant(t, s, "acme")

	if _, err := in.Trigger(context.Background(), tenant, "gitlab", testProjectID, 99); err == nil {
		t.Fatal("Trigger() succeeded for an MR the host does not know")
	}
}
