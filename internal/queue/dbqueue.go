package queue

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"go.uber.org/zap"
)

// DBQueue persists jobs in the service database. Durability and FIFO
// ordering come from the QueueJob table; leasing uses short transactions
// so concurrent workers never double-deliver.
type DBQueue struct {
	db              *gorm.DB
	maxAttempts     int
	backoffDelay    time.Duration
	maxStalledCount int
	now             func() time.Time
}

// Option tunes a DBQueue.
type Option func(*DBQueue)

// WithMaxAttempts overrides the per-job attempt budget.
func WithMaxAttempts(n int) Option {
	return func(q *DBQueue) { q.maxAttempts = n }
}

// WithBackoffDelay overrides the base retry delay.
func WithBackoffDelay(d time.Duration) Option {
	return func(q *DBQueue) { q.backoffDelay = d }
}

// WithMaxStalledCount overrides how many lease expirations a job survives.
func WithMaxStalledCount(n int) Option {
	return func(q *DBQueue) { q.maxStalledCount = n }
}

// withClock injects a fake clock in tests.
func withClock(now func() time.Time) Option {
	return func(q *DBQueue) { q.now = now }
}

// NewDBQueue creates a database-backed queue.
func NewDBQueue(db *gorm.DB, opts ...Option) *DBQueue {
	q := &DBQueue{
		db:              db,
		maxAttempts:     DefaultMaxAttempts,
		backoffDelay:    DefaultBackoffDelay,
		maxStalledCount: DefaultMaxStalledCount,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue inserts a job keyed by id. A pending or running job with the
// same id absorbs the enqueue; a finished one is replaced by a fresh job.
func (q *DBQueue) Enqueue(ctx context.Context, id string, payload Payload) (bool, error) {
	raw, err := payload.Marshal()
	if err != nil {
		return false, err
	}

	created := false
	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.QueueJob
		err := tx.Where("id = ?", id).First(&existing).Error
		switch {
		case err == nil:
			switch existing.State {
			case model.JobStateWaiting, model.JobStateActive, model.JobStateDelayed:
				// Same work is already scheduled
				return nil
			default:
				// Finished job: replace it so the id can run again
				if err := tx.Delete(&model.QueueJob{}, "id = ?", id).Error; err != nil {
					return err
				}
			}
		case err != gorm.ErrRecordNotFound:
			return err
		}

		job := model.QueueJob{
			ID:             id,
			State:          model.JobStateWaiting,
			Payload:        raw,
			MaxAttempts:    q.maxAttempts,
			BackoffDelayMS: q.backoffDelay.Milliseconds(),
		}
		if err := tx.Create(&job).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueueEnqueue, "enqueue job", err)
	}

	if created {
		logger.Debug("job enqueued", zap.String("job_id", id))
	} else {
		logger.Debug("job already pending, enqueue absorbed", zap.String("job_id", id))
	}
	return created, nil
}

// GetJob looks up a stored job by id.
func (q *DBQueue) GetJob(ctx context.Context, id string) (*JobInfo, error) {
	var job model.QueueJob
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "look up job", err)
	}
	return &JobInfo{
		ID:        job.ID,
		State:     string(job.State),
		Attempts:  job.Attempts,
		LastError: job.LastError,
	}, nil
}

// Lease pops the oldest runnable job: waiting, or delayed past its
// next_run_at. The job is marked active and locked until now+lockDuration.
func (q *DBQueue) Lease(ctx context.Context, workerID string, lockDuration time.Duration) (*Job, error) {
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	now := q.now()

	var leased *model.QueueJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.QueueJob
		err := tx.
			Where("state = ? OR (state = ? AND next_run_at <= ?)",
				model.JobStateWaiting, model.JobStateDelayed, now).
			Order("created_at asc").
			First(&job).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		lockedUntil := now.Add(lockDuration)
		res := tx.Model(&model.QueueJob{}).
			Where("id = ? AND state = ?", job.ID, job.State).
			Updates(map[string]interface{}{
				"state":        model.JobStateActive,
				"attempts":     job.Attempts + 1,
				"locked_by":    workerID,
				"locked_until": lockedUntil,
				"next_run_at":  nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another worker won the race; caller polls again
			return nil
		}
		job.Attempts++
		leased = &job
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueueLease, "lease job", err)
	}
	if leased == nil {
		return nil, nil
	}

	payload, err := UnmarshalPayload(leased.Payload)
	if err != nil {
		return nil, err
	}
	return &Job{ID: leased.ID, Payload: payload, Attempts: leased.Attempts}, nil
}

// Ack completes a leased job.
func (q *DBQueue) Ack(ctx context.Context, id string) error {
	var job model.QueueJob
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.New(errors.ErrCodeJobNotFound, "job not found: "+id)
		}
		return err
	}

	if job.RemoveOnComplete {
		return q.db.WithContext(ctx).Delete(&model.QueueJob{}, "id = ?", id).Error
	}
	return q.db.WithContext(ctx).Model(&model.QueueJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":        model.JobStateCompleted,
			"locked_by":    "",
			"locked_until": nil,
		}).Error
}

// Fail records a failed attempt. Attempts left: the job goes delayed with
// exponential backoff (base * 2^(attempts-1)). Exhausted: it goes failed.
func (q *DBQueue) Fail(ctx context.Context, id string, reason string) error {
	var job model.QueueJob
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.New(errors.ErrCodeJobNotFound, "job not found: "+id)
		}
		return err
	}

	updates := map[string]interface{}{
		"last_error":   reason,
		"locked_by":    "",
		"locked_until": nil,
	}

	if job.Attempts >= job.MaxAttempts {
		if job.RemoveOnFail {
			return q.db.WithContext(ctx).Delete(&model.QueueJob{}, "id = ?", id).Error
		}
		updates["state"] = model.JobStateFailed
		logger.Warn("job failed permanently",
			zap.String("job_id", id),
			zap.Int("attempts", job.Attempts))
	} else {
		delay := time.Duration(job.BackoffDelayMS) * time.Millisecond
		for i := 1; i < job.Attempts; i++ {
			delay *= 2
		}
		nextRun := q.now().Add(delay)
		updates["state"] = model.JobStateDelayed
		updates["next_run_at"] = nextRun
		logger.Info("job scheduled for retry",
			zap.String("job_id", id),
			zap.Int("attempt", job.Attempts),
			zap.Duration("delay", delay))
	}

	return q.db.WithContext(ctx).Model(&model.QueueJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// FailPermanent parks a job immediately regardless of remaining attempts.
func (q *DBQueue) FailPermanent(ctx context.Context, id string, reason string) error {
	res := q.db.WithContext(ctx).Model(&model.QueueJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":        model.JobStateFailed,
			"last_error":   reason,
			"locked_by":    "",
			"locked_until": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.ErrCodeJobNotFound, "job not found: "+id)
	}
	logger.Warn("job failed permanently, no retry",
		zap.String("job_id", id),
		zap.String("reason", reason))
	return nil
}

// ExtendLease pushes an active job's lock forward.
func (q *DBQueue) ExtendLease(ctx context.Context, id string, lockDuration time.Duration) error {
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	res := q.db.WithContext(ctx).Model(&model.QueueJob{}).
		Where("id = ? AND state = ?", id, model.JobStateActive).
		Update("locked_until", q.now().Add(lockDuration))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.ErrCodeJobNotFound, "active job not found: "+id)
	}
	return nil
}

// RecoverStalled re-queues active jobs whose lease expired. A job seen
// stalling more than maxStalledCount times is failed instead of requeued.
func (q *DBQueue) RecoverStalled(ctx context.Context) (int, error) {
	now := q.now()

	var stalled []model.QueueJob
	if err := q.db.WithContext(ctx).
		Where("state = ? AND locked_until < ?", model.JobStateActive, now).
		Find(&stalled).Error; err != nil {
		return 0, err
	}

	touched := 0
	for _, job := range stalled {
		updates := map[string]interface{}{
			"stalled_count": job.StalledCount + 1,
			"locked_by":     "",
			"locked_until":  nil,
		}
		if job.StalledCount+1 > q.maxStalledCount {
			updates["state"] = model.JobStateFailed
			updates["last_error"] = "job stalled too many times"
		} else {
			updates["state"] = model.JobStateWaiting
		}

		res := q.db.WithContext(ctx).Model(&model.QueueJob{}).
			Where("id = ? AND state = ? AND locked_until < ?", job.ID, model.JobStateActive, now).
			Updates(updates)
		if res.Error != nil {
			return touched, res.Error
		}
		if res.RowsAffected > 0 {
			touched++
			logger.Warn("stalled job recovered",
				zap.String("job_id", job.ID),
				zap.Int("stalled_count", job.StalledCount+1))
		}
	}
	return touched, nil
}

// Depth counts runnable and delayed jobs.
func (q *DBQueue) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&model.QueueJob{}).
		Where("state IN ?", []model.JobState{model.JobStateWaiting, model.JobStateDelayed}).
		Count(&count).Error
	return count, err
}
