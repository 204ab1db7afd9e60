package queue

import (
	"context"
	"testing"
	"time"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/store"
)

func TestJobIdentityRoundTrip(t *testing.T) {
	id := JobIdentity{
		TenantSlug: "acme",
		Provider:   "gitlab",
		ProjectID:  "77381939",
		MRIID:      12,
		HeadSHA:    "abc123def",
	}

	s := id.String()
	want := "acme__gitlab__77381939__12__abc123def"
	if s != want {
		t.Errorf("String() = %q, want %q", s, want)
	}

	parsed, err := ParseJobID(s)
	if err != nil {
		t.Fatalf("ParseJobID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParseJobID() = %+v, want %+v", parsed, id)
	}
}

func TestJobIdentityManualTrigger(t *testing.T) {
	id := JobIdentity{
		TenantSlug:  "acme",
		Provider:    "gitlab",
		ProjectID:   "42",
		MRIID:       7,
		HeadSHA:     "deadbeef",
		ReviewRunID: "run123",
	}

	s := id.String()
	if s != "acme__gitlab__42__7__deadbeef__run123" {
		t.Errorf("String() = %q", s)
	}

	parsed, err := ParseJobID(s)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.ReviewRunID != "run123" {
		t.Errorf("ReviewRunID = %q, want run123", parsed.ReviewRunID)
	}
}

func TestParseJobIDMalformed(t *testing.T) {
	for _, bad := range []string{"", "a__b", "a__b__c__notanumber__e"} {
		if _, err := ParseJobID(bad); err == nil {
			t.Errorf("ParseJobID(%q) accepted malformed id", bad)
		}
	}
}

func TestBackingFromURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"", "db", false},
		{"db://local", "db", false},
		{"redis://localhost:6379", "", true},
		{"not-a-url", "", true},
	}
	for _, tt := range tests {
		got, err := BackingFromURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("BackingFromURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("BackingFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func setupQueue(t *testing.T, opts ...Option) (*DBQueue, func()) {
	t.Helper()
	s, cleanup := store.SetupTestDB(t)
	return NewDBQueue(s.DB(), opts...), cleanup
}

func payload(runID string) Payload {
	return Payload{
		TenantID:    "tnt",
		TenantSlug:  "acme",
		Provider:    "gitlab",
		ProjectID:   "42",
		MRIID:       7,
		HeadSHA:     "abc",
		ReviewRunID: runID,
	}
}

func TestEnqueueDedup(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	created, err := q.Enqueue(ctx, "job-1", payload("r1"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if !created {
		t.Error("first Enqueue() created = false")
	}

	// Same id while pending is absorbed
	created, err = q.Enqueue(ctx, "job-1", payload("r1"))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("duplicate Enqueue() created a second job")
	}

	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Errorf("Depth() = %d, want 1", depth)
	}
}

func TestEnqueueReplacesFinishedJob(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "job-1", payload("r1")); err != nil {
		t.Fatal(err)
	}
	job, err := q.Lease(ctx, "w1", time.Minute)
	if err != nil || job == nil {
		t.Fatalf("Lease() = %v, %v", job, err)
	}
	if err := q.Ack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	// Completed job with the same id is replaced by a fresh one
	created, err := q.Enqueue(ctx, "job-1", payload("r2"))
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("enqueue over a completed job did not create a fresh job")
	}

	fresh, err := q.Lease(ctx, "w1", time.Minute)
	if err != nil || fresh == nil {
		t.Fatalf("Lease() = %v, %v", fresh, err)
	}
	if fresh.Payload.ReviewRunID != "r2" {
		t.Errorf("payload run id = %q, want r2", fresh.Payload.ReviewRunID)
	}
	if fresh.Attempts != 1 {
		t.Errorf("fresh job attempts = %d, want 1", fresh.Attempts)
	}
}

func TestLeaseFIFO(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"job-a", "job-b", "job-c"} {
		if _, err := q.Enqueue(ctx, id, payload(id)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, want := range []string{"job-a", "job-b", "job-c"} {
		job, err := q.Lease(ctx, "w1", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if job == nil || job.ID != want {
			t.Errorf("Lease() = %v, want %s", job, want)
		}
	}

	empty, err := q.Lease(ctx, "w1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if empty != nil {
		t.Errorf("Lease() on drained queue = %v, want nil", empty)
	}
}

func TestLeasedJobNotRedelivered(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "job-1", payload("r1")); err != nil {
		t.Fatal(err)
	}
	first, err := q.Lease(ctx, "w1", time.Minute)
	if err != nil || first == nil {
		t.Fatal("first lease failed")
	}

	second, err := q.Lease(ctx, "w2", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if second != nil {
		t.Errorf("active job redelivered to second worker: %v", second)
	}
}

func TestFailSchedulesBackoffThenExhausts(t *testing.T) {
	now := time.Now()
	clock := &now
	q, cleanup := setupQueue(t,
		WithBackoffDelay(2*time.Second),
		withClock(func() time.Time { return *clock }))
	defer cleanup()
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "job-1", payload("r1")); err != nil {
		t.Fatal(err)
	}

	// Attempt 1 fails: delayed by 2s
	job, _ := q.Lease(ctx, "w1", time.Minute)
	if job == nil || job.Attempts != 1 {
		t.Fatalf("attempt 1 lease = %+v", job)
	}
	if err := q.Fail(ctx, job.ID, "boom: 503"); err != nil {
		t.Fatal(err)
	}

	// Not yet runnable
	if j, _ := q.Lease(ctx, "w1", time.Minute); j != nil {
		t.Errorf("delayed job leased before backoff elapsed")
	}

	// Attempt 2 after the backoff: fails again, delayed by 4s
	now = now.Add(3 * time.Second)
	job, _ = q.Lease(ctx, "w1", time.Minute)
	if job == nil || job.Attempts != 2 {
		t.Fatalf("attempt 2 lease = %+v", job)
	}
	if err := q.Fail(ctx, job.ID, "boom: 503"); err != nil {
		t.Fatal(err)
	}

	now = now.Add(3 * time.Second)
	if j, _ := q.Lease(ctx, "w1", time.Minute); j != nil {
		t.Error("job leased before doubled backoff elapsed")
	}

	// Attempt 3: final failure parks the job
	now = now.Add(2 * time.Second)
	job, _ = q.Lease(ctx, "w1", time.Minute)
	if job == nil || job.Attempts != 3 {
		t.Fatalf("attempt 3 lease = %+v", job)
	}
	if err := q.Fail(ctx, job.ID, "boom: 503"); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Hour)
	if j, _ := q.Lease(ctx, "w1", time.Minute); j != nil {
		t.Error("exhausted job redelivered")
	}

	var stored model.QueueJob
	if err := q.db.Where("id = ?", "job-1").First(&stored).Error; err != nil {
		t.Fatal(err)
	}
	if stored.State != model.JobStateFailed {
		t.Errorf("state = %s, want failed", stored.State)
	}
	if stored.LastError != "boom: 503" {
		t.Errorf("LastError = %q", stored.LastError)
	}
}

func TestRecoverStalled(t *testing.T) {
	now := time.Now()
	clock := &now
	q, cleanup := setupQueue(t, withClock(func() time.Time { return *clock }))
	defer cleanup()
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "job-1", payload("r1")); err != nil {
		t.Fatal(err)
	}
	if job, _ := q.Lease(ctx, "w1", time.Minute); job == nil {
		t.Fatal("lease failed")
	}

	// Lease still valid: nothing to recover
	n, err := q.RecoverStalled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("RecoverStalled() = %d, want 0", n)
	}

	// First expiration requeues the job
	now = now.Add(2 * time.Minute)
	n, err = q.RecoverStalled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("RecoverStalled() = %d, want 1", n)
	}

	job, _ := q.Lease(ctx, "w2", time.Minute)
	if job == nil {
		t.Fatal("recovered job not leasable")
	}

	// Second expiration exceeds maxStalledCount and fails the job
	now = now.Add(2 * time.Minute)
	n, err = q.RecoverStalled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("second RecoverStalled() = %d, want 1", n)
	}

	var stored model.QueueJob
	if err := q.db.Where("id = ?", "job-1").First(&stored).Error; err != nil {
		t.Fatal(err)
	}
	if stored.State != model.JobStateFailed {
		t.Errorf("state after repeated stalls = %s, want failed", stored.State)
	}
}

func TestExtendLease(t *testing.T) {
	now := time.Now()
	clock := &now
	q, cleanup := setupQueue(t, withClock(func() time.Time { return *clock }))
	defer cleanup()
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "job-1", payload("r1")); err != nil {
		t.Fatal(err)
	}
	if job, _ := q.Lease(ctx, "w1", time.Minute); job == nil {
		t.Fatal("lease failed")
	}

	if err := q.ExtendLease(ctx, "job-1", 10*time.Minute); err != nil {
		t.Fatalf("ExtendLease() error = %v", err)
	}

	// Past the original lease but inside the extension: no recovery
	now = now.Add(5 * time.Minute)
	n, err := q.RecoverStalled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("RecoverStalled() = %d after extension, want 0", n)
	}

	if err := q.ExtendLease(ctx, "missing", time.Minute); err == nil {
		t.Error("ExtendLease() on unknown job succeeded")
	}
}
