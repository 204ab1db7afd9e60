// Package store provides test utilities for database testing.
package store

import (
	"os"
	"testing"

	"github.com/reviewgate/reviewgate/internal/database"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/pkg/idgen"
)

// SetupTestDB creates a throwaway SQLite database for testing.
// It returns a Store instance and a cleanup function.
// The cleanup function should be called with defer in tests.
func SetupTestDB(t *testing.T) (Store, func()) {
	t.Helper()

	// Reset database state to allow re-initialization
	database.ResetForTesting()

	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	if err := database.Init("sqlite://" + tmpPath); err != nil {
		os.Remove(tmpPath)
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	store := NewStore(database.Get())

	cleanup := func() {
		database.Close()
		database.ResetForTesting()
		os.Remove(tmpPath)
	}

	return store, cleanup
}

// CreateTestTenant creates a tenant with a webhook secret for tests.
func CreateTestTenant(t *testing.T, s Store, slug string) *model.Tenant {
	t.Helper()

	tenant := &model.Tenant{
		ID:             idgen.NewID(),
		Slug:           slug,
		WebhookSecrets: model.JSONMap{"gitlab": "secret-" + slug},
	}
	if err := s.Tenant().Create(tenant); err != nil {
		t.Fatalf("Failed to create test tenant: %v", err)
	}
	return tenant
}

// CreateTestMR creates a repository and merge request pair for tests.
func CreateTestMR(t *testing.T, s Store, tenantID string, iid int) (*model.Repository, *model.MergeRequest) {
	t.Helper()

	repo, err := s.Repo().UpsertRepository(&model.Repository{
		TenantID:       tenantID,
		Provider:       "gitlab",
		ProviderRepoID: "77381939",
		Namespace:      "acme",
		Name:           "shop",
		DefaultBranch:  "main",
	})
	if err != nil {
		t.Fatalf("Failed to create test repository: %v", err)
	}

	mr, err := s.Repo().UpsertMergeRequest(&model.MergeRequest{
		TenantID:     tenantID,
		RepositoryID: repo.ID,
		IID:          iid,
		Title:        "Add checkout flow",
		Author:       "dev1",
		SourceBranch: "feature/checkout",
		TargetBranch: "main",
		State:        "opened",
		WebURL:       "https://gitlab.example.com/acme/shop/-/merge_requests/2",
		LastSeenSHA:  "",
	})
	if err != nil {
		t.Fatalf("Failed to create test merge request: %v", err)
	}
	return repo, mr
}

// CreateTestRun creates a queued review run for tests.
func CreateTestRun(t *testing.T, s Store, tenantID, mrID, headSha string) *model.ReviewRun {
	t.Helper()

	run := &model.ReviewRun{
		TenantID:       tenantID,
		MergeRequestID: mrID,
		HeadSHA:        headSha,
		Status:         model.RunStatusQueued,
	}
	if err := s.Run().Create(run); err != nil {
		t.Fatalf("Failed to create test review run: %v", err)
	}
	return run
}
