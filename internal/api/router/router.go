// Package router sets up the API routes for the application.
package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/reviewgate/reviewgate/consts"
	"github.com/reviewgate/reviewgate/internal/activity"
	"github.com/reviewgate/reviewgate/internal/api/handler"
	"github.com/reviewgate/reviewgate/internal/api/middleware"
	"github.com/reviewgate/reviewgate/internal/config"
	"github.com/reviewgate/reviewgate/internal/engine"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/store"
)

// Deps carries everything the routes need.
type Deps struct {
	Intake   *engine.Intake
	Store    store.Store
	Tenant   *model.Tenant
	Activity *activity.Buffer
}

// Setup configures all API routes
func Setup(r *gin.Engine, cfg *config.Config, deps Deps) {
	// Apply global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(&middleware.LoggerConfig{
		AccessLog: cfg.Logging.AccessLog,
	}))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler(cfg.Server.Debug))

	// Apply OpenTelemetry tracing middleware
	r.Use(otelgin.Middleware(consts.ServiceName))

	// Health check endpoint (public)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": consts.Version,
			"uptime":  consts.GetUptime().String(),
		})
	})

	// API v1 routes
	v1 := r.Group("/api/v1")

	// Webhook routes (public - authenticated by the per-tenant shared secret)
	webhookHandler := handler.NewWebhookHandler(deps.Intake, deps.Store, deps.Activity)
	webhooks := v1.Group("/webhooks")
	{
		webhooks.POST("/:provider", webhookHandler.HandleWebhook)
	}

	// Control API - protected by the static bearer token
	auth := middleware.APIAuth(cfg.Server.APIToken)

	reviewHandler := handler.NewReviewHandler(deps.Intake, deps.Store, deps.Tenant, deps.Activity)
	runs := v1.Group("/review-runs")
	runs.Use(auth)
	{
		runs.GET("", reviewHandler.ListReviewRuns)
		runs.GET("/:id", reviewHandler.GetReviewRun)
		runs.POST("/:id/retry", reviewHandler.RetryReviewRun)
	}

	mrHandler := handler.NewMergeRequestHandler(deps.Intake, deps.Store, deps.Tenant, deps.Activity)
	mrs := v1.Group("/merge-requests")
	mrs.Use(auth)
	{
		mrs.GET("", mrHandler.ListMergeRequests)
		mrs.GET("/:projectId/:iid", mrHandler.GetMergeRequest)
		mrs.POST("/:projectId/:iid/trigger-review", mrHandler.TriggerReview)
	}

	activityHandler := handler.NewActivityHandler(deps.Activity)
	v1.GET("/activity", auth, activityHandler.ListActivity)
}
