package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewgate/reviewgate/internal/activity"
	"github.com/reviewgate/reviewgate/internal/host"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/store"
)

func TestListMergeRequestsWithLatestRun(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	_, mr := store.CreateTestMR(t, env.store, env.tenant.ID, 2)
	run := store.CreateTestRun(t, env.store, env.tenant.ID, mr.ID, "sha1")

	w := env.do(http.MethodGet, "/api/v1/merge-requests", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	items, _ := body["items"].([]any)
	assert.Equal(t, float64(1), body["total"])
	if assert.Len(t, items, 1) {
		item, _ := items[0].(map[string]any)
		latest, _ := item["latestRun"].(map[string]any)
		if assert.NotNil(t, latest) {
			assert.Equal(t, run.ID, latest["id"])
		}
	}
}

func TestGetMergeRequest(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	repo, mr := store.CreateTestMR(t, env.store, env.tenant.ID, 2)

	w := env.do(http.MethodGet, "/api/v1/merge-requests/"+repo.ProviderRepoID+"/2", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	got, _ := body["mergeRequest"].(map[string]any)
	assert.Equal(t, mr.ID, got["id"])
	assert.Nil(t, body["latestRun"])
}

func TestGetMergeRequestNotFound(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	w := env.do(http.MethodGet, "/api/v1/merge-requests/99999/1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMergeRequestInvalidIID(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	w := env.do(http.MethodGet, "/api/v1/merge-requests/77381939/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/merge-requests/77381939/0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerReview(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	env.host.SetMR("77381939", &host.MergeRequest{
		IID:          2,
		Title:        "Add checkout flow",
		State:        "opened",
		SourceBranch: "feature/checkout",
		TargetBranch: "main",
		HeadSHA:      "sha-manual",
		Author:       "dev1",
		WebURL:       "https://gitlab.example.com/acme/shop/-/merge_requests/2",
	}, nil)

	w := env.do(http.MethodPost, "/api/v1/merge-requests/77381939/2/trigger-review", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	runID, _ := body["reviewRunId"].(string)
	assert.NotEmpty(t, runID)
	assert.NotEmpty(t, body["jobId"])

	run, err := env.store.Run().GetByID(runID)
	assert.NoError(t, err)
	assert.Equal(t, "sha-manual", run.HeadSHA)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	depth, _ := env.queue.Depth(context.Background())
	assert.Equal(t, int64(1), depth)

	events := env.activity.Tail(10)
	if assert.Len(t, events, 1) {
		assert.Equal(t, activity.EventManualTrigger, events[0].Type)
	}
}

func TestTriggerReviewUnknownMR(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	w := env.do(http.MethodPost, "/api/v1/merge-requests/77381939/8/trigger-review", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
