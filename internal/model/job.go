package model

import "time"

// JobState represents the lifecycle state of a queued job
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateDelayed   JobState = "delayed"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// QueueJob is a durable queue entry. The primary key is the job identity
// string, which serializes delivery per id and dedups webhook re-enqueues.
type QueueJob struct {
	ID        string    `gorm:"primarykey;size:512" json:"id"` // job identity string
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	State JobState `gorm:"size:20;not null;default:waiting;index" json:"state"`

	// Payload is the JSON-encoded job payload
	Payload string `gorm:"type:text;not null" json:"payload"`

	// Attempts already consumed; MaxAttempts bounds retries
	Attempts    int `gorm:"default:0" json:"attempts"`
	MaxAttempts int `gorm:"default:3" json:"max_attempts"`

	// BackoffDelayMS is the base delay for exponential backoff between attempts
	BackoffDelayMS int64 `gorm:"default:2000" json:"backoff_delay_ms"`

	// NextRunAt gates delayed jobs; zero means immediately runnable
	NextRunAt *time.Time `gorm:"index" json:"next_run_at,omitempty"`

	// Lease bookkeeping for active jobs
	LockedBy    string     `gorm:"size:100" json:"locked_by,omitempty"`
	LockedUntil *time.Time `gorm:"index" json:"locked_until,omitempty"`

	// StalledCount counts lease expirations observed for this job
	StalledCount int `gorm:"default:0" json:"stalled_count"`

	LastError string `gorm:"type:text" json:"last_error,omitempty"`

	RemoveOnComplete bool `gorm:"default:false" json:"remove_on_complete"`
	RemoveOnFail     bool `gorm:"default:false" json:"remove_on_fail"`
}
