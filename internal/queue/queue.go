// Package queue provides the durable review job queue: FIFO delivery with
// at-least-once semantics, job-id deduplication, exponential retry backoff
// and stalled-job recovery. The default backing is the service database.
package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/reviewgate/reviewgate/pkg/errors"
)

// Defaults mirror the worker contract: three attempts with a 2s base
// backoff, five-minute leases, and one stall before a job is parked.
const (
	DefaultMaxAttempts     = 3
	DefaultBackoffDelay    = 2 * time.Second
	DefaultLockDuration    = 5 * time.Minute
	DefaultStalledInterval = 30 * time.Second
	DefaultMaxStalledCount = 1
)

// Payload is the job body carried through the queue.
type Payload struct {
	TenantID    string `json:"tenantId"`
	TenantSlug  string `json:"tenantSlug"`
	Provider    string `json:"provider"`
	ProjectID   string `json:"projectId"`
	MRIID       int    `json:"mrIid"`
	HeadSHA     string `json:"headSha"`
	ReviewRunID string `json:"reviewRunId"`
	Title       string `json:"title,omitempty"`
	// MergedCandidate marks events where the MR reached merged state and
	// should be evaluated for precedent ingestion.
	MergedCandidate bool `json:"isMergedCandidate,omitempty"`
	Manual          bool `json:"manual,omitempty"`
}

// Marshal encodes the payload for storage.
func (p Payload) Marshal() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeQueueEnqueue, "marshal job payload", err)
	}
	return string(data), nil
}

// UnmarshalPayload decodes a stored payload.
func UnmarshalPayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, errors.Wrap(errors.ErrCodeInternal, "unmarshal job payload", err)
	}
	return p, nil
}

// Job is one leased unit of work.
type Job struct {
	ID       string
	Payload  Payload
	Attempts int
}

// JobInfo is the observable state of a stored job.
type JobInfo struct {
	ID        string
	State     string
	Attempts  int
	LastError string
}

// Finished reports whether the job reached a terminal state.
func (j *JobInfo) Finished() bool {
	return j.State == "completed" || j.State == "failed"
}

// Queue is the durable job queue contract.
type Queue interface {
	// Enqueue adds a job unless one with the same id is already pending
	// or running; a finished job with the same id is replaced. Returns
	// whether a new job was created.
	Enqueue(ctx context.Context, id string, payload Payload) (bool, error)

	// GetJob looks up a job by id. A nil result means no such job.
	GetJob(ctx context.Context, id string) (*JobInfo, error)

	// Lease pops the oldest ready job and locks it for the worker. A nil
	// job means the queue is empty.
	Lease(ctx context.Context, workerID string, lockDuration time.Duration) (*Job, error)

	// Ack marks a leased job completed.
	Ack(ctx context.Context, id string) error

	// Fail records a failed attempt: the job is redelivered after
	// exponential backoff until its attempts are exhausted.
	Fail(ctx context.Context, id string, reason string) error

	// FailPermanent parks a job immediately, skipping remaining attempts.
	FailPermanent(ctx context.Context, id string, reason string) error

	// ExtendLease pushes a leased job's lock forward.
	ExtendLease(ctx context.Context, id string, lockDuration time.Duration) error

	// RecoverStalled re-queues jobs whose lease expired, failing those
	// that stalled too often. Returns how many jobs were touched.
	RecoverStalled(ctx context.Context) (int, error)

	// Depth counts jobs waiting or delayed.
	Depth(ctx context.Context) (int64, error)
}

// BackingFromURL resolves the queue backing scheme of a QUEUE_URL value.
// "db://" (and the empty string) select the database-backed queue.
func BackingFromURL(queueURL string) (string, error) {
	if queueURL == "" {
		return "db", nil
	}
	idx := strings.Index(queueURL, "://")
	if idx < 0 {
		return "", errors.New(errors.ErrCodeConfigInvalid, "queue url must be of the form scheme://...")
	}
	scheme := queueURL[:idx]
	if scheme != "db" {
		return "", errors.New(errors.ErrCodeConfigInvalid, "unsupported queue backing: "+scheme)
	}
	return scheme, nil
}
