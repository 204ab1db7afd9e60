package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/activity"
	"github.com/reviewgate/reviewgate/internal/engine"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/store"
	pkgerrors "github.com/reviewgate/reviewgate/pkg/errors"
)

// ReviewHandler serves the review run control endpoints.
type ReviewHandler struct {
	intake   *engine.Intake
	store    store.Store
	tenant   *model.Tenant
	activity *activity.Buffer
}

// NewReviewHandler creates a new review handler scoped to one tenant.
func NewReviewHandler(in *engine.Intake, s store.Store, tenant *model.Tenant, buf *activity.Buffer) *ReviewHandler {
	return &ReviewHandler{intake: in, store: s, tenant: tenant, activity: buf}
}

// ListReviewRuns handles GET /api/v1/review-runs
func (h *ReviewHandler) ListReviewRuns(c *gin.Context) {
	limit, offset := parsePagination(c)

	runs, total, err := h.store.Run().List(h.tenant.ID, limit, offset)
	if err != nil {
		abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "list review runs", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  runs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetReviewRun handles GET /api/v1/review-runs/:id
func (h *ReviewHandler) GetReviewRun(c *gin.Context) {
	id := c.Param("id")

	run, err := h.store.Run().GetByID(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			abortWithError(c, pkgerrors.New(pkgerrors.ErrCodeRunNotFound, "review run not found: "+id))
			return
		}
		abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "load review run", err))
		return
	}
	// A run from another tenant is indistinguishable from a missing one.
	if run.TenantID != h.tenant.ID {
		abortWithError(c, pkgerrors.New(pkgerrors.ErrCodeRunNotFound, "review run not found: "+id))
		return
	}

	results, err := h.store.Run().ListCheckResults(run.ID)
	if err != nil {
		abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "list check results", err))
		return
	}
	suggestions, err := h.store.Run().ListSuggestions(run.ID)
	if err != nil {
		abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "list suggestions", err))
		return
	}
	comment, err := h.store.Run().GetSummaryComment(run.ID)
	if err != nil {
		abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "load summary comment", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":          run,
		"checkResults": results,
		"suggestions":  suggestions,
		"comment":      comment,
	})
}

// RetryReviewRun handles POST /api/v1/review-runs/:id/retry
func (h *ReviewHandler) RetryReviewRun(c *gin.Context) {
	id := c.Param("id")

	res, err := h.intake.Retry(c.Request.Context(), h.tenant, id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.activity.Record(activity.Event{
		Type:        activity.EventRetry,
		TenantSlug:  h.tenant.Slug,
		ReviewRunID: res.ReviewRunID,
		JobID:       res.JobID,
	})

	c.JSON(http.StatusOK, gin.H{
		"reviewRunId": res.ReviewRunID,
		"jobId":       res.JobID,
	})
}
