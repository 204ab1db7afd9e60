package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/pkg/idgen"
)

// RepoStore defines operations for Repository and MergeRequest models.
type RepoStore interface {
	// Repository operations
	UpsertRepository(repo *model.Repository) (*model.Repository, error)
	GetRepositoryByID(id string) (*model.Repository, error)
	GetRepositoryByProviderID(tenantID, provider, providerRepoID string) (*model.Repository, error)

	// MergeRequest operations
	UpsertMergeRequest(mr *model.MergeRequest) (*model.MergeRequest, error)
	GetMergeRequestByID(id string) (*model.MergeRequest, error)
	GetMergeRequestByIID(tenantID, repositoryID string, iid int) (*model.MergeRequest, error)
	ListMergeRequests(tenantID, repositoryID string, limit, offset int) ([]model.MergeRequest, int64, error)
	UpdateLastSeenSHA(mrID, sha string) error
}

type repoStore struct {
	db *gorm.DB
}

func newRepoStore(db *gorm.DB) RepoStore {
	return &repoStore{db: db}
}

// UpsertRepository creates the repository or refreshes its metadata if the
// identity tuple (tenant, provider, providerRepoId) already exists.
func (s *repoStore) UpsertRepository(repo *model.Repository) (*model.Repository, error) {
	existing, err := s.GetRepositoryByProviderID(repo.TenantID, repo.Provider, repo.ProviderRepoID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		updates := map[string]interface{}{}
		if repo.Namespace != "" && repo.Namespace != existing.Namespace {
			updates["namespace"] = repo.Namespace
		}
		if repo.Name != "" && repo.Name != existing.Name {
			updates["name"] = repo.Name
		}
		if repo.DefaultBranch != "" && repo.DefaultBranch != existing.DefaultBranch {
			updates["default_branch"] = repo.DefaultBranch
		}
		if len(updates) > 0 {
			if err := s.db.Model(existing).Updates(updates).Error; err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	if repo.ID == "" {
		repo.ID = idgen.NewID()
	}
	if err := s.db.Create(repo).Error; err != nil {
		// Lost a concurrent upsert race; the row exists now
		if retry, lookupErr := s.GetRepositoryByProviderID(repo.TenantID, repo.Provider, repo.ProviderRepoID); lookupErr == nil {
			return retry, nil
		}
		return nil, err
	}
	return repo, nil
}

func (s *repoStore) GetRepositoryByID(id string) (*model.Repository, error) {
	var repo model.Repository
	if err := s.db.First(&repo, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *repoStore) GetRepositoryByProviderID(tenantID, provider, providerRepoID string) (*model.Repository, error) {
	var repo model.Repository
	err := s.db.First(&repo,
		"tenant_id = ? AND provider = ? AND provider_repo_id = ?",
		tenantID, provider, providerRepoID).Error
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// UpsertMergeRequest creates the MR or refreshes its mutable fields if the
// identity tuple (tenant, repository, iid) already exists.
func (s *repoStore) UpsertMergeRequest(mr *model.MergeRequest) (*model.MergeRequest, error) {
	existing, err := s.GetMergeRequestByIID(mr.TenantID, mr.RepositoryID, mr.IID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		updates := map[string]interface{}{}
		if mr.Title != "" {
			updates["title"] = mr.Title
		}
		if mr.Author != "" {
			updates["author"] = mr.Author
		}
		if mr.SourceBranch != "" {
			updates["source_branch"] = mr.SourceBranch
		}
		if mr.TargetBranch != "" {
			updates["target_branch"] = mr.TargetBranch
		}
		if mr.State != "" {
			updates["state"] = mr.State
		}
		if mr.WebURL != "" {
			updates["web_url"] = mr.WebURL
		}
		if len(updates) > 0 {
			if err := s.db.Model(existing).Updates(updates).Error; err != nil {
				return nil, err
			}
		}
		return s.GetMergeRequestByID(existing.ID)
	}

	if mr.ID == "" {
		mr.ID = idgen.NewID()
	}
	if err := s.db.Create(mr).Error; err != nil {
		if retry, lookupErr := s.GetMergeRequestByIID(mr.TenantID, mr.RepositoryID, mr.IID); lookupErr == nil {
			return retry, nil
		}
		return nil, err
	}
	return mr, nil
}

func (s *repoStore) GetMergeRequestByID(id string) (*model.MergeRequest, error) {
	var mr model.MergeRequest
	if err := s.db.First(&mr, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &mr, nil
}

func (s *repoStore) GetMergeRequestByIID(tenantID, repositoryID string, iid int) (*model.MergeRequest, error) {
	var mr model.MergeRequest
	err := s.db.First(&mr,
		"tenant_id = ? AND repository_id = ? AND iid = ?",
		tenantID, repositoryID, iid).Error
	if err != nil {
		return nil, err
	}
	return &mr, nil
}

func (s *repoStore) ListMergeRequests(tenantID, repositoryID string, limit, offset int) ([]model.MergeRequest, int64, error) {
	query := s.db.Model(&model.MergeRequest{}).Where("tenant_id = ?", tenantID)
	if repositoryID != "" {
		query = query.Where("repository_id = ?", repositoryID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var mrs []model.MergeRequest
	err := query.Order("updated_at DESC").Limit(limit).Offset(offset).Find(&mrs).Error
	if err != nil {
		return nil, 0, err
	}
	return mrs, total, nil
}

func (s *repoStore) UpdateLastSeenSHA(mrID, sha string) error {
	return s.db.Model(&model.MergeRequest{}).
		Where("id = ?", mrID).
		Update("last_seen_sha", sha).Error
}
