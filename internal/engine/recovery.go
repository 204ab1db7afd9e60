package engine

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/reviewgate/reviewgate/internal/store"
	"github.com/reviewgate/reviewgate/pkg/logger"
)

// staleRunAge is how long a run may sit RUNNING before the sweeper treats
// it as abandoned by a dead process. Comfortably above the queue lease so
// stalled-job recovery gets first shot at redelivery.
const staleRunAge = 30 * time.Minute

// RecoverStaleRuns force-fails RUNNING runs older than staleRunAge. Called
// once at process start, before the dispatcher begins leasing.
func RecoverStaleRuns(st store.Store) (int64, error) {
	cutoff := time.Now().Add(-staleRunAge)
	n, err := st.Run().ForceFailStale(cutoff, ForcedFailureMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Warn("stale running runs force-failed at startup", zap.Int64("count", n))
	}
	return n, nil
}

// StartRecoveryCron schedules the stale-run sweep periodically for the
// process lifetime. The returned cron is already started.
func StartRecoveryCron(st store.Store) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc("@every 10m", func() {
		if _, sweepErr := RecoverStaleRuns(st); sweepErr != nil {
			logger.Error("periodic stale-run sweep failed", zap.Error(sweepErr))
		}
	})
	if err != nil {
		logger.Error("recovery cron schedule failed", zap.Error(err))
	}
	c.Start()
	return c
}
