package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/reviewgate/reviewgate/internal/queue"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"github.com/reviewgate/reviewgate/pkg/telemetry"
)

const defaultPollInterval = time.Second

// DispatcherConfig tunes the worker pool.
type DispatcherConfig struct {
	// Concurrency is the number of parallel job processors, at least 1.
	Concurrency int

	LockDuration    time.Duration
	StalledInterval time.Duration
	PollInterval    time.Duration
}

// Dispatcher leases jobs from the queue and feeds them to the engine. It
// owns lease heartbeats, job settlement, and the stalled-job sweep.
type Dispatcher struct {
	engine *Engine
	queue  queue.Queue
	cfg    DispatcherConfig

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher builds a dispatcher over the engine's queue.
func NewDispatcher(e *Engine, cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = queue.DefaultLockDuration
	}
	if cfg.StalledInterval <= 0 {
		cfg.StalledInterval = queue.DefaultStalledInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Dispatcher{engine: e, queue: e.queue, cfg: cfg}
}

// Start launches the worker pool and the stalled-job sweeper. It returns
// immediately; Stop blocks until all in-flight jobs settle.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	base := xid.New().String()
	for i := 0; i < d.cfg.Concurrency; i++ {
		workerID := fmt.Sprintf("%s-%d", base, i)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.workLoop(ctx, workerID)
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sweepLoop(ctx)
	}()

	logger.Info("review dispatcher started",
		zap.Int("concurrency", d.cfg.Concurrency),
		zap.Duration("lock_duration", d.cfg.LockDuration))
}

// Stop cancels the pool and waits for workers to drain.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	logger.Info("review dispatcher stopped")
}

func (d *Dispatcher) workLoop(ctx context.Context, workerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := d.queue.Lease(ctx, workerID, d.cfg.LockDuration)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("job lease failed", zap.Error(err))
			d.sleep(ctx, d.cfg.PollInterval)
			continue
		}
		if job == nil {
			d.sleep(ctx, d.cfg.PollInterval)
			continue
		}

		d.runJob(ctx, job)
	}
}

// runJob executes one job under a lease heartbeat and settles it.
func (d *Dispatcher) runJob(ctx context.Context, job *queue.Job) {
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go func() {
		defer hbDone.Done()
		ticker := time.NewTicker(d.cfg.LockDuration / 2)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				if err := d.queue.ExtendLease(ctx, job.ID, d.cfg.LockDuration); err != nil {
					logger.Warn("lease extension failed",
						zap.String("job_id", job.ID),
						zap.Error(err))
				}
			}
		}
	}()

	err := d.engine.ProcessJob(ctx, job)
	stopHeartbeat()
	hbDone.Wait()

	// Settlement uses a fresh context: the pool may be shutting down but
	// the job outcome still has to land in the queue.
	settleCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case err == nil:
		if ackErr := d.queue.Ack(settleCtx, job.ID); ackErr != nil {
			logger.Error("job ack failed", zap.String("job_id", job.ID), zap.Error(ackErr))
		}
		telemetry.GetMetrics().RecordQueueDepthDelta(settleCtx, -1)
	case IsPermanentError(err):
		logger.Warn("job failed permanently",
			zap.String("job_id", job.ID),
			zap.Error(err))
		if failErr := d.queue.FailPermanent(settleCtx, job.ID, SanitizeError(err.Error())); failErr != nil {
			logger.Error("permanent job settlement failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		telemetry.GetMetrics().RecordQueueDepthDelta(settleCtx, -1)
	default:
		logger.Warn("job attempt failed",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempts),
			zap.Error(err))
		if failErr := d.queue.Fail(settleCtx, job.ID, SanitizeError(err.Error())); failErr != nil {
			logger.Error("job settlement failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
	}
}

func (d *Dispatcher) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.StalledInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.queue.RecoverStalled(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("stalled job sweep failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				logger.Info("stalled jobs recovered", zap.Int("count", n))
			}
		}
	}
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
