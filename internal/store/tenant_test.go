package store

import (
	"testing"

	"github.com/reviewgate/reviewgate/internal/model"
)

func TestTenantWebhookSecretLookup(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	tenant := CreateTestTenant(t, s, "acme")

	t.Run("matching secret resolves tenant", func(t *testing.T) {
		got, err := s.Tenant().GetByWebhookSecret("gitlab", "secret-acme")
		if err != nil {
			t.Fatalf("GetByWebhookSecret() error = %v", err)
		}
		if got == nil || got.ID != tenant.ID {
			t.Errorf("got = %v, want tenant %s", got, tenant.ID)
		}
	})

	t.Run("wrong secret yields nil", func(t *testing.T) {
		got, err := s.Tenant().GetByWebhookSecret("gitlab", "wrong")
		if err != nil {
			t.Fatalf("GetByWebhookSecret() error = %v", err)
		}
		if got != nil {
			t.Errorf("got = %v, want nil", got)
		}
	})

	t.Run("empty secret yields nil", func(t *testing.T) {
		got, err := s.Tenant().GetByWebhookSecret("gitlab", "")
		if err != nil {
			t.Fatalf("GetByWebhookSecret() error = %v", err)
		}
		if got != nil {
			t.Errorf("got = %v, want nil", got)
		}
	})

	t.Run("wrong provider yields nil", func(t *testing.T) {
		got, err := s.Tenant().GetByWebhookSecret("github", "secret-acme")
		if err != nil {
			t.Fatalf("GetByWebhookSecret() error = %v", err)
		}
		if got != nil {
			t.Errorf("got = %v, want nil", got)
		}
	})
}

func TestGetOrCreateBySlug(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	first, err := s.Tenant().GetOrCreateBySlug("fresh")
	if err != nil {
		t.Fatalf("GetOrCreateBySlug() error = %v", err)
	}
	if first.Slug != "fresh" {
		t.Errorf("Slug = %q, want fresh", first.Slug)
	}

	second, err := s.Tenant().GetOrCreateBySlug("fresh")
	if err != nil {
		t.Fatalf("second GetOrCreateBySlug() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second call created new tenant %s, want %s", second.ID, first.ID)
	}
}

func TestRepoAndMRUpsert(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	tenant := CreateTestTenant(t, s, "t1")

	repo, err := s.Repo().UpsertRepository(&model.Repository{
		TenantID:       tenant.ID,
		Provider:       "gitlab",
		ProviderRepoID: "42",
		Namespace:      "acme",
		Name:           "api",
	})
	if err != nil {
		t.Fatalf("UpsertRepository() error = %v", err)
	}

	// Second upsert with same identity updates in place
	again, err := s.Repo().UpsertRepository(&model.Repository{
		TenantID:       tenant.ID,
		Provider:       "gitlab",
		ProviderRepoID: "42",
		DefaultBranch:  "main",
	})
	if err != nil {
		t.Fatalf("second UpsertRepository() error = %v", err)
	}
	if again.ID != repo.ID {
		t.Errorf("upsert created duplicate repository %s, want %s", again.ID, repo.ID)
	}

	mr, err := s.Repo().UpsertMergeRequest(&model.MergeRequest{
		TenantID:     tenant.ID,
		RepositoryID: repo.ID,
		IID:          9,
		Title:        "first title",
	})
	if err != nil {
		t.Fatalf("UpsertMergeRequest() error = %v", err)
	}

	updated, err := s.Repo().UpsertMergeRequest(&model.MergeRequest{
		TenantID:     tenant.ID,
		RepositoryID: repo.ID,
		IID:          9,
		Title:        "second title",
		State:        "merged",
	})
	if err != nil {
		t.Fatalf("second UpsertMergeRequest() error = %v", err)
	}
	if updated.ID != mr.ID {
		t.Errorf("upsert created duplicate MR %s, want %s", updated.ID, mr.ID)
	}
	if updated.Title != "second title" || updated.State != "merged" {
		t.Errorf("updated MR = %+v", updated)
	}

	if err := s.Repo().UpdateLastSeenSHA(mr.ID, "abc123"); err != nil {
		t.Fatalf("UpdateLastSeenSHA() error = %v", err)
	}
	got, _ := s.Repo().GetMergeRequestByID(mr.ID)
	if got.LastSeenSHA != "abc123" {
		t.Errorf("LastSeenSHA = %q, want abc123", got.LastSeenSHA)
	}
}
