package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/activity"
	"github.com/reviewgate/reviewgate/internal/engine"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/store"
	pkgerrors "github.com/reviewgate/reviewgate/pkg/errors"
)

const defaultProvider = "gitlab"

// MergeRequestHandler serves the merge request control endpoints.
type MergeRequestHandler struct {
	intake   *engine.Intake
	store    store.Store
	tenant   *model.Tenant
	activity *activity.Buffer
}

// NewMergeRequestHandler creates a new merge request handler scoped to one tenant.
func NewMergeRequestHandler(in *engine.Intake, s store.Store, tenant *model.Tenant, buf *activity.Buffer) *MergeRequestHandler {
	return &MergeRequestHandler{intake: in, store: s, tenant: tenant, activity: buf}
}

// mergeRequestView pairs an MR with its most recent review run.
type mergeRequestView struct {
	MergeRequest model.MergeRequest `json:"mergeRequest"`
	LatestRun    *model.ReviewRun   `json:"latestRun"`
}

// ListMergeRequests handles GET /api/v1/merge-requests
func (h *MergeRequestHandler) ListMergeRequests(c *gin.Context) {
	limit, offset := parsePagination(c)
	repositoryID := c.Query("repositoryId")

	mrs, total, err := h.store.Repo().ListMergeRequests(h.tenant.ID, repositoryID, limit, offset)
	if err != nil {
		abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "list merge requests", err))
		return
	}

	items := make([]mergeRequestView, 0, len(mrs))
	for _, mr := range mrs {
		view := mergeRequestView{MergeRequest: mr}
		run, runErr := h.store.Run().GetLatestForMR(h.tenant.ID, mr.ID)
		if runErr != nil && runErr != gorm.ErrRecordNotFound {
			abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "load latest run", runErr))
			return
		}
		view.LatestRun = run
		items = append(items, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetMergeRequest handles GET /api/v1/merge-requests/:projectId/:iid
func (h *MergeRequestHandler) GetMergeRequest(c *gin.Context) {
	projectID, iid, ok := h.pathIdentity(c)
	if !ok {
		return
	}

	repo, err := h.store.Repo().GetRepositoryByProviderID(h.tenant.ID, defaultProvider, projectID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			abortWithError(c, pkgerrors.ErrNotFound("merge request"))
			return
		}
		abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "load repository", err))
		return
	}

	mr, err := h.store.Repo().GetMergeRequestByIID(h.tenant.ID, repo.ID, iid)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			abortWithError(c, pkgerrors.ErrNotFound("merge request"))
			return
		}
		abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "load merge request", err))
		return
	}

	run, err := h.store.Run().GetLatestForMR(h.tenant.ID, mr.ID)
	if err != nil && err != gorm.ErrRecordNotFound {
		abortWithError(c, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "load latest run", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mergeRequest": mr,
		"repository":   repo,
		"latestRun":    run,
	})
}

// TriggerReview handles POST /api/v1/merge-requests/:projectId/:iid/trigger-review
func (h *MergeRequestHandler) TriggerReview(c *gin.Context) {
	projectID, iid, ok := h.pathIdentity(c)
	if !ok {
		return
	}

	res, err := h.intake.Trigger(c.Request.Context(), h.tenant, defaultProvider, projectID, iid)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.activity.Record(activity.Event{
		Type:        activity.EventManualTrigger,
		Provider:    defaultProvider,
		TenantSlug:  h.tenant.Slug,
		ProjectID:   projectID,
		MRIID:       iid,
		ReviewRunID: res.ReviewRunID,
		JobID:       res.JobID,
	})

	c.JSON(http.StatusOK, gin.H{
		"reviewRunId": res.ReviewRunID,
		"jobId":       res.JobID,
	})
}

func (h *MergeRequestHandler) pathIdentity(c *gin.Context) (projectID string, iid int, ok bool) {
	projectID = c.Param("projectId")
	iid, err := strconv.Atoi(c.Param("iid"))
	if err != nil || iid <= 0 {
		abortWithError(c, pkgerrors.ErrValidation("merge request iid must be a positive integer"))
		return "", 0, false
	}
	return projectID, iid, true
}
