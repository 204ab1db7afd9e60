// Package handler provides test utilities for HTTP handler testing.
package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/reviewgate/reviewgate/internal/activity"
	"github.com/reviewgate/reviewgate/internal/api/middleware"
	"github.com/reviewgate/reviewgate/internal/engine"
	hostmock "github.com/reviewgate/reviewgate/internal/host/mock"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/queue"
	"github.com/reviewgate/reviewgate/internal/store"
)

// testEnv wires the handlers over an in-memory store, a mock host, and a
// real database queue, with routes mounted the way the router does.
type testEnv struct {
	router   *gin.Engine
	store    store.Store
	queue    *queue.DBQueue
	host     *hostmock.Client
	tenant   *model.Tenant
	activity *activity.Buffer
	cleanup  func()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, cleanup := store.SetupTestDB(t)
	q := queue.NewDBQueue(s.DB())
	h := hostmock.NewClient()
	tenant := store.CreateTestTenant(t, s, "acme")
	intake := engine.NewIntake(s, q, h)
	buf := activity.NewBuffer(activity.DefaultCapacity)

	r := gin.New()
	r.Use(middleware.ErrorHandler(false))

	webhookHandler := NewWebhookHandler(intake, s, buf)
	r.POST("/api/v1/webhooks/:provider", webhookHandler.HandleWebhook)

	reviewHandler := NewReviewHandler(intake, s, tenant, buf)
	r.GET("/api/v1/review-runs", reviewHandler.ListReviewRuns)
	r.GET("/api/v1/review-runs/:id", reviewHandler.GetReviewRun)
	r.POST("/api/v1/review-runs/:id/retry", reviewHandler.RetryReviewRun)

	mrHandler := NewMergeRequestHandler(intake, s, tenant, buf)
	r.GET("/api/v1/merge-requests", mrHandler.ListMergeRequests)
	r.GET("/api/v1/merge-requests/:projectId/:iid", mrHandler.GetMergeRequest)
	r.POST("/api/v1/merge-requests/:projectId/:iid/trigger-review", mrHandler.TriggerReview)

	activityHandler := NewActivityHandler(buf)
	r.GET("/api/v1/activity", activityHandler.ListActivity)

	return &testEnv{
		router:   r,
		store:    s,
		queue:    q,
		host:     h,
		tenant:   tenant,
		activity: buf,
		cleanup:  cleanup,
	}
}

// do performs a request against the test router and returns the recorder.
func (e *testEnv) do(method, url string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, url, bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, url, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals a JSON response body into a generic map.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, w.Body.String())
	}
	return out
}
