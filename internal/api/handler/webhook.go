package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewgate/reviewgate/internal/activity"
	"github.com/reviewgate/reviewgate/internal/engine"
	"github.com/reviewgate/reviewgate/internal/store"
	pkgerrors "github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"github.com/reviewgate/reviewgate/pkg/telemetry"
)

// WebhookHandler handles webhook-related HTTP requests.
type WebhookHandler struct {
	intake   *engine.Intake
	store    store.Store
	activity *activity.Buffer
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(in *engine.Intake, s store.Store, buf *activity.Buffer) *WebhookHandler {
	return &WebhookHandler{intake: in, store: s, activity: buf}
}

// gitlabMergeRequestEvent is the subset of the GitLab MR event payload the
// intake path consumes. Everything is optional; missing fields fall out as
// zero values and are handled defensively below.
type gitlabMergeRequestEvent struct {
	ObjectKind string `json:"object_kind"`
	User       struct {
		Username string `json:"username"`
	} `json:"user"`
	Project struct {
		ID                int64  `json:"id"`
		PathWithNamespace string `json:"path_with_namespace"`
		DefaultBranch     string `json:"default_branch"`
	} `json:"project"`
	ObjectAttributes struct {
		IID          int    `json:"iid"`
		Title        string `json:"title"`
		State        string `json:"state"`
		Action       string `json:"action"`
		SourceBranch string `json:"source_branch"`
		TargetBranch string `json:"target_branch"`
		URL          string `json:"url"`
		LastCommit   struct {
			ID string `json:"id"`
		} `json:"last_commit"`
	} `json:"object_attributes"`
}

// HandleWebhook handles POST /api/v1/webhooks/:provider
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	providerName := c.Param("provider")
	metrics := telemetry.GetMetrics()

	if providerName != "gitlab" {
		logger.Warn("Unknown webhook provider", zap.String("provider", providerName))
		metrics.RecordWebhookEvent(c.Request.Context(), providerName, "rejected")
		respondError(c, http.StatusNotFound, pkgerrors.ErrCodeNotFound,
			"Unknown provider: "+providerName)
		return
	}

	// The shared secret identifies the tenant. Header first, query fallback
	// for hosts that cannot set custom headers.
	secret := c.GetHeader("X-Gitlab-Token")
	if secret == "" {
		secret = c.Query("secret")
	}
	tenant, err := h.store.Tenant().GetByWebhookSecret(providerName, secret)
	if err != nil {
		logger.Error("Webhook tenant lookup failed", zap.Error(err))
		metrics.RecordWebhookEvent(c.Request.Context(), providerName, "error")
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeDBQuery,
			"Tenant lookup failed")
		return
	}
	if tenant == nil {
		logger.Warn("Webhook secret did not match any tenant",
			zap.String("provider", providerName),
			zap.String("ip", c.ClientIP()),
		)
		metrics.RecordWebhookEvent(c.Request.Context(), providerName, "rejected")
		h.activity.Record(activity.Event{
			Type:     activity.EventWebhookRejected,
			Provider: providerName,
			Reason:   "webhook secret mismatch",
		})
		respondError(c, http.StatusUnauthorized, pkgerrors.ErrCodeUnauthorized,
			"Invalid webhook secret")
		return
	}

	var event gitlabMergeRequestEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		logger.Warn("Failed to parse webhook body",
			zap.String("provider", providerName),
			zap.Error(err),
		)
		metrics.RecordWebhookEvent(c.Request.Context(), providerName, "rejected")
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodeValidation,
			"Failed to parse webhook body")
		return
	}

	if event.ObjectKind != "merge_request" {
		h.ignore(c, tenant.Slug, providerName, &event,
			"event kind not handled: "+event.ObjectKind)
		return
	}

	attrs := event.ObjectAttributes
	logger.Info("Webhook received",
		zap.String("provider", providerName),
		zap.String("tenant", tenant.Slug),
		zap.String("action", attrs.Action),
		zap.String("state", attrs.State),
		zap.Int("mr_iid", attrs.IID),
		zap.String("head_sha", attrs.LastCommit.ID),
	)

	mergedCandidate := false
	switch attrs.Action {
	case "open", "update", "reopen":
	case "merge":
		// A merge event with a head SHA still gets a run: the worker uses it
		// for GOLD precedent evaluation.
		if attrs.LastCommit.ID == "" {
			h.ignore(c, tenant.Slug, providerName, &event, "merge event without head sha")
			return
		}
		mergedCandidate = true
	default:
		h.ignore(c, tenant.Slug, providerName, &event,
			"action not reviewed: "+attrs.Action)
		return
	}

	if attrs.IID <= 0 || event.Project.ID <= 0 {
		metrics.RecordWebhookEvent(c.Request.Context(), providerName, "rejected")
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodeValidation,
			"Event carries no merge request or project identity")
		return
	}

	namespace, repoName := splitProjectPath(event.Project.PathWithNamespace)
	upd := engine.MRUpdate{
		Provider:        providerName,
		ProjectID:       strconv.FormatInt(event.Project.ID, 10),
		Namespace:       namespace,
		RepoName:        repoName,
		DefaultBranch:   event.Project.DefaultBranch,
		IID:             attrs.IID,
		Title:           attrs.Title,
		Author:          event.User.Username,
		SourceBranch:    attrs.SourceBranch,
		TargetBranch:    attrs.TargetBranch,
		State:           attrs.State,
		WebURL:          attrs.URL,
		HeadSHA:         attrs.LastCommit.ID,
		MergedCandidate: mergedCandidate,
	}

	res, err := h.intake.Submit(c.Request.Context(), tenant, upd)
	if err != nil {
		if appErr, ok := pkgerrors.AsAppError(err); ok && appErr.Code == pkgerrors.ErrCodeValidation {
			metrics.RecordWebhookEvent(c.Request.Context(), providerName, "rejected")
			respondError(c, http.StatusBadRequest, appErr.Code, appErr.Message)
			return
		}
		logger.Error("Webhook intake failed",
			zap.String("provider", providerName),
			zap.Int("mr_iid", attrs.IID),
			zap.Error(err),
		)
		metrics.RecordWebhookEvent(c.Request.Context(), providerName, "error")
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"Failed to enqueue review")
		return
	}

	metrics.RecordWebhookEvent(c.Request.Context(), providerName, "accepted")
	h.activity.Record(activity.Event{
		Type:        activity.EventWebhookAccepted,
		Provider:    providerName,
		TenantSlug:  tenant.Slug,
		ProjectID:   upd.ProjectID,
		MRIID:       upd.IID,
		HeadSHA:     upd.HeadSHA,
		ReviewRunID: res.ReviewRunID,
		JobID:       res.JobID,
	})

	c.JSON(http.StatusOK, gin.H{
		"reviewRunId": res.ReviewRunID,
		"jobId":       res.JobID,
	})
}

// ignore acknowledges an event without enqueueing work.
func (h *WebhookHandler) ignore(c *gin.Context, tenantSlug, providerName string, event *gitlabMergeRequestEvent, reason string) {
	logger.Info("Webhook event ignored",
		zap.String("provider", providerName),
		zap.String("reason", reason),
	)
	telemetry.GetMetrics().RecordWebhookEvent(c.Request.Context(), providerName, "ignored")
	h.activity.Record(activity.Event{
		Type:       activity.EventWebhookIgnored,
		Provider:   providerName,
		TenantSlug: tenantSlug,
		ProjectID:  strconv.FormatInt(event.Project.ID, 10),
		MRIID:      event.ObjectAttributes.IID,
		Reason:     reason,
	})
	c.JSON(http.StatusAccepted, gin.H{"reason": reason})
}

func splitProjectPath(path string) (namespace, name string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
