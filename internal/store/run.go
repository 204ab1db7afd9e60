package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/pkg/idgen"
)

// RunStore defines operations for ReviewRun, ReviewCheckResult, AiSuggestion,
// and PostedComment models.
type RunStore interface {
	// ReviewRun CRUD
	Create(run *model.ReviewRun) error
	GetByID(id string) (*model.ReviewRun, error)
	// GetLatestForSHA returns the most recent run for (tenant, MR, headSha).
	GetLatestForSHA(tenantID, mergeRequestID, headSha string) (*model.ReviewRun, error)
	// GetLatestForMR returns the most recent run for an MR regardless of SHA.
	GetLatestForMR(tenantID, mergeRequestID string) (*model.ReviewRun, error)
	List(tenantID string, limit, offset int) ([]model.ReviewRun, int64, error)

	// State transitions
	// MarkRunning unconditionally moves the run to RUNNING, stamps startedAt
	// and clears the error. It returns the status prior to the update.
	MarkRunning(id string) (model.RunStatus, error)
	MarkSucceeded(id string, score int, summary string) error
	MarkFailed(id string, errMsg string) error
	// ResetForRetry moves a FAILED run back to QUEUED and clears derived
	// fields. Returns false when the run was not FAILED.
	ResetForRetry(id string) (bool, error)
	UpdateProgress(id, phase, message string) error
	// ForceFailStale finalizes RUNNING runs whose startedAt predates cutoff.
	ForceFailStale(cutoff time.Time, message string) (int64, error)

	// ReviewCheckResult operations
	CreateCheckResults(results []model.ReviewCheckResult) error
	ListCheckResults(reviewRunID string) ([]model.ReviewCheckResult, error)
	HasCheckResults(reviewRunID string) (bool, error)

	// AiSuggestion operations
	CreateSuggestions(suggestions []model.AiSuggestion) error
	ListSuggestions(reviewRunID string) ([]model.AiSuggestion, error)
	DeleteSuggestions(reviewRunID string) error

	// PostedComment operations
	// GetSummaryComment returns (nil, nil) when no summary comment exists.
	GetSummaryComment(reviewRunID string) (*model.PostedComment, error)
	CreateComment(comment *model.PostedComment) error
	UpdateComment(comment *model.PostedComment) error
}

type runStore struct {
	db *gorm.DB
}

func newRunStore(db *gorm.DB) RunStore {
	return &runStore{db: db}
}

func (s *runStore) Create(run *model.ReviewRun) error {
	if run.ID == "" {
		run.ID = idgen.NewRunID()
	}
	if run.Status == "" {
		run.Status = model.RunStatusQueued
	}
	return s.db.Create(run).Error
}

func (s *runStore) GetByID(id string) (*model.ReviewRun, error) {
	var run model.ReviewRun
	if err := s.db.First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *runStore) GetLatestForSHA(tenantID, mergeRequestID, headSha string) (*model.ReviewRun, error) {
	var run model.ReviewRun
	err := s.db.
		Where("tenant_id = ? AND merge_request_id = ? AND head_sha = ?", tenantID, mergeRequestID, headSha).
		Order("created_at DESC").
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *runStore) GetLatestForMR(tenantID, mergeRequestID string) (*model.ReviewRun, error) {
	var run model.ReviewRun
	err := s.db.
		Where("tenant_id = ? AND merge_request_id = ?", tenantID, mergeRequestID).
		Order("created_at DESC").
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *runStore) List(tenantID string, limit, offset int) ([]model.ReviewRun, int64, error) {
	query := s.db.Model(&model.ReviewRun{}).Where("tenant_id = ?", tenantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []model.ReviewRun
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

func (s *runStore) MarkRunning(id string) (model.RunStatus, error) {
	var prior model.RunStatus
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var run model.ReviewRun
		if err := tx.Select("status").First(&run, "id = ?", id).Error; err != nil {
			return err
		}
		prior = run.Status

		now := time.Now()
		return tx.Model(&model.ReviewRun{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":     model.RunStatusRunning,
			"started_at": now,
			"error":      "",
		}).Error
	})
	return prior, err
}

func (s *runStore) MarkSucceeded(id string, score int, summary string) error {
	now := time.Now()
	return s.db.Model(&model.ReviewRun{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      model.RunStatusSucceeded,
		"score":       score,
		"summary":     summary,
		"finished_at": now,
		"phase":       "done",
	}).Error
}

func (s *runStore) MarkFailed(id string, errMsg string) error {
	now := time.Now()
	return s.db.Model(&model.ReviewRun{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      model.RunStatusFailed,
		"error":       errMsg,
		"finished_at": now,
	}).Error
}

func (s *runStore) ResetForRetry(id string) (bool, error) {
	result := s.db.Model(&model.ReviewRun{}).
		Where("id = ? AND status = ?", id, model.RunStatusFailed).
		Updates(map[string]interface{}{
			"status":           model.RunStatusQueued,
			"error":            "",
			"finished_at":      nil,
			"score":            nil,
			"summary":          "",
			"phase":            "",
			"progress_message": "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *runStore) UpdateProgress(id, phase, message string) error {
	return s.db.Model(&model.ReviewRun{}).Where("id = ?", id).Updates(map[string]interface{}{
		"phase":            phase,
		"progress_message": message,
	}).Error
}

func (s *runStore) ForceFailStale(cutoff time.Time, message string) (int64, error) {
	now := time.Now()
	result := s.db.Model(&model.ReviewRun{}).
		Where("status = ? AND started_at < ?", model.RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":      model.RunStatusFailed,
			"error":       message,
			"finished_at": now,
		})
	return result.RowsAffected, result.Error
}

// ReviewCheckResult operations

func (s *runStore) CreateCheckResults(results []model.ReviewCheckResult) error {
	if len(results) == 0 {
		return nil
	}
	for i := range results {
		if results[i].ID == "" {
			results[i].ID = idgen.NewID()
		}
	}
	// Atomic batch: either all rows land or none, so the idempotency marker
	// never observes a partial set
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&results).Error
	})
}

func (s *runStore) ListCheckResults(reviewRunID string) ([]model.ReviewCheckResult, error) {
	var results []model.ReviewCheckResult
	err := s.db.Where("review_run_id = ?", reviewRunID).Order("check_key").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *runStore) HasCheckResults(reviewRunID string) (bool, error) {
	var count int64
	err := s.db.Model(&model.ReviewCheckResult{}).
		Where("review_run_id = ?", reviewRunID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AiSuggestion operations

func (s *runStore) CreateSuggestions(suggestions []model.AiSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	for i := range suggestions {
		if suggestions[i].ID == "" {
			suggestions[i].ID = idgen.NewID()
		}
	}
	return s.db.Create(&suggestions).Error
}

func (s *runStore) ListSuggestions(reviewRunID string) ([]model.AiSuggestion, error) {
	var suggestions []model.AiSuggestion
	err := s.db.Where("review_run_id = ?", reviewRunID).Order("created_at").Find(&suggestions).Error
	if err != nil {
		return nil, err
	}
	return suggestions, nil
}

func (s *runStore) DeleteSuggestions(reviewRunID string) error {
	return s.db.Where("review_run_id = ?", reviewRunID).Delete(&model.AiSuggestion{}).Error
}

// PostedComment operations

func (s *runStore) GetSummaryComment(reviewRunID string) (*model.PostedComment, error) {
	var comment model.PostedComment
	err := s.db.First(&comment,
		"review_run_id = ? AND type = ?", reviewRunID, model.CommentTypeSummary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &comment, nil
}

func (s *runStore) CreateComment(comment *model.PostedComment) error {
	if comment.ID == "" {
		comment.ID = idgen.NewID()
	}
	if comment.Type == "" {
		comment.Type = model.CommentTypeSummary
	}
	return s.db.Create(comment).Error
}

func (s *runStore) UpdateComment(comment *model.PostedComment) error {
	return s.db.Save(comment).Error
}
