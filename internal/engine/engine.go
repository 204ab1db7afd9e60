// Package engine drives review runs end to end: it leases jobs from the
// queue, executes the deterministic check pipeline against the merge
// request diff, evaluates precedent knowledge, optionally augments the
// result with bounded AI suggestions, and reconciles the single summary
// comment on the host.
package engine

import (
	"time"

	"github.com/reviewgate/reviewgate/internal/checks"
	"github.com/reviewgate/reviewgate/internal/host"
	"github.com/reviewgate/reviewgate/internal/knowledge"
	"github.com/reviewgate/reviewgate/internal/llm"
	"github.com/reviewgate/reviewgate/internal/queue"
	"github.com/reviewgate/reviewgate/internal/store"
	"github.com/reviewgate/reviewgate/pkg/errors"
)

// ForcedFailureMessage is written to a run that reaches the end of job
// processing without a terminal status. It should never appear in practice.
const ForcedFailureMessage = "Unexpected termination: job completed without setting final status"

// Config wires the engine's collaborators.
type Config struct {
	Store store.Store
	Host  host.Client
	Queue queue.Queue

	// LLM is nil when AI augmentation is disabled process-wide.
	LLM llm.Client

	// MinGoldScore is the score floor for GOLD precedent promotion.
	MinGoldScore int

	// LockDuration is the queue lease length for jobs this engine runs.
	LockDuration time.Duration
}

// Engine executes review jobs.
type Engine struct {
	store        store.Store
	host         host.Client
	queue        queue.Queue
	llm          llm.Client
	checks       *checks.Engine
	knowledge    *knowledge.Service
	lockDuration time.Duration
}

// New builds an engine over the given collaborators.
func New(cfg Config) *Engine {
	minScore := cfg.MinGoldScore
	if minScore <= 0 {
		minScore = knowledge.DefaultMinGoldScore
	}
	lock := cfg.LockDuration
	if lock <= 0 {
		lock = queue.DefaultLockDuration
	}
	return &Engine{
		store:        cfg.Store,
		host:         cfg.Host,
		queue:        cfg.Queue,
		llm:          cfg.LLM,
		checks:       checks.NewEngine(),
		knowledge:    knowledge.NewService(cfg.Store, minScore),
		lockDuration: lock,
	}
}

// IsPermanentError reports whether a job error should park the job instead
// of scheduling another attempt: host auth and not-found responses, runs
// that no longer exist, and tenant mismatches never heal on retry.
func IsPermanentError(err error) bool {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return false
	}
	switch appErr.Code {
	case errors.ErrCodeRunNotFound, errors.ErrCodeTenantMismatch, errors.ErrCodeConfigInvalid:
		return true
	}
	return errors.IsPermanentHostError(appErr)
}
