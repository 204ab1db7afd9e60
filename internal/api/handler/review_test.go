package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/store"
)

func TestListReviewRuns(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	_, mr := store.CreateTestMR(t, env.store, env.tenant.ID, 2)
	store.CreateTestRun(t, env.store, env.tenant.ID, mr.ID, "sha1")
	store.CreateTestRun(t, env.store, env.tenant.ID, mr.ID, "sha2")

	w := env.do(http.MethodGet, "/api/v1/review-runs?limit=1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	items, _ := body["items"].([]any)
	assert.Len(t, items, 1)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(1), body["limit"])
}

func TestGetReviewRunDetail(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	_, mr := store.CreateTestMR(t, env.store, env.tenant.ID, 2)
	run := store.CreateTestRun(t, env.store, env.tenant.ID, mr.ID, "sha1")
	err := env.store.Run().CreateCheckResults([]model.ReviewCheckResult{{
		TenantID:    env.tenant.ID,
		ReviewRunID: run.ID,
		CheckKey:    "security.hardcoded-secrets",
		Category:    model.CategorySecurity,
		Status:      model.CheckStatusPass,
		Severity:    model.SeverityBlocker,
	}})
	assert.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/review-runs/"+run.ID, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	got, _ := body["run"].(map[string]any)
	assert.Equal(t, run.ID, got["id"])
	results, _ := body["checkResults"].([]any)
	assert.Len(t, results, 1)
	assert.Nil(t, body["comment"])
}

func TestGetReviewRunNotFound(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	w := env.do(http.MethodGet, "/api/v1/review-runs/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestGetReviewRunOtherTenantHidden(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	other := store.CreateTestTenant(t, env.store, "rival")
	_, mr := store.CreateTestMR(t, env.store, other.ID, 9)
	run := store.CreateTestRun(t, env.store, other.ID, mr.ID, "sha1")

	w := env.do(http.MethodGet, "/api/v1/review-runs/"+run.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryReviewRun(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	_, mr := store.CreateTestMR(t, env.store, env.tenant.ID, 2)
	run := store.CreateTestRun(t, env.store, env.tenant.ID, mr.ID, "sha1")
	assert.NoError(t, env.store.Run().MarkFailed(run.ID, "gitlab api returned 503"))

	w := env.do(http.MethodPost, "/api/v1/review-runs/"+run.ID+"/retry", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, run.ID, body["reviewRunId"])
	jobID, _ := body["jobId"].(string)
	assert.True(t, strings.HasSuffix(jobID, "__"+run.ID), "job id %q", jobID)

	got, _ := env.store.Run().GetByID(run.ID)
	assert.Equal(t, model.RunStatusQueued, got.Status)
}

func TestRetryReviewRunNotRetryable(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	_, mr := store.CreateTestMR(t, env.store, env.tenant.ID, 2)
	run := store.CreateTestRun(t, env.store, env.tenant.ID, mr.ID, "sha1")

	w := env.do(http.MethodPost, "/api/v1/review-runs/"+run.ID+"/retry", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
