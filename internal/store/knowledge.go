package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/pkg/idgen"
)

// KnowledgeStore defines operations for the KnowledgeSource model.
type KnowledgeStore interface {
	// Upsert stores a knowledge source idempotently. Identical content
	// (same tenant + contentHash) is a no-op; otherwise the logical identity
	// (tenant, type, provider, providerId) is updated in place when present.
	// Returns the stored row and whether a write happened.
	Upsert(source *model.KnowledgeSource) (*model.KnowledgeSource, bool, error)
	GetByContentHash(tenantID, contentHash string) (*model.KnowledgeSource, error)
	ListByType(tenantID string, sourceType model.KnowledgeType) ([]model.KnowledgeSource, error)
	CountByTenant(tenantID string) (int64, error)
}

type knowledgeStore struct {
	db *gorm.DB
}

func newKnowledgeStore(db *gorm.DB) KnowledgeStore {
	return &knowledgeStore{db: db}
}

func (s *knowledgeStore) Upsert(source *model.KnowledgeSource) (*model.KnowledgeSource, bool, error) {
	// Same bytes already ingested: no-op
	existing, err := s.GetByContentHash(source.TenantID, source.ContentHash)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	// Same logical identity with different content: replace in place
	if source.Provider != "" && source.ProviderID != "" {
		var logical model.KnowledgeSource
		err := s.db.First(&logical,
			"tenant_id = ? AND type = ? AND provider = ? AND provider_id = ?",
			source.TenantID, source.Type, source.Provider, source.ProviderID).Error
		if err == nil {
			logical.Title = source.Title
			logical.SourceURL = source.SourceURL
			logical.ContentText = source.ContentText
			logical.ContentHash = source.ContentHash
			logical.Metadata = source.Metadata
			logical.FeatureTokens = source.FeatureTokens
			if err := s.db.Save(&logical).Error; err != nil {
				return nil, false, err
			}
			return &logical, true, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	if source.ID == "" {
		source.ID = idgen.NewID()
	}
	if err := s.db.Create(source).Error; err != nil {
		// Concurrent ingest of the same content loses the race
		if retry, lookupErr := s.GetByContentHash(source.TenantID, source.ContentHash); lookupErr == nil {
			return retry, false, nil
		}
		return nil, false, err
	}
	return source, true, nil
}

func (s *knowledgeStore) GetByContentHash(tenantID, contentHash string) (*model.KnowledgeSource, error) {
	var source model.KnowledgeSource
	err := s.db.First(&source,
		"tenant_id = ? AND content_hash = ?", tenantID, contentHash).Error
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (s *knowledgeStore) ListByType(tenantID string, sourceType model.KnowledgeType) ([]model.KnowledgeSource, error) {
	var sources []model.KnowledgeSource
	err := s.db.
		Where("tenant_id = ? AND type = ?", tenantID, sourceType).
		Order("created_at DESC").
		Find(&sources).Error
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func (s *knowledgeStore) CountByTenant(tenantID string) (int64, error) {
	var count int64
	err := s.db.Model(&model.KnowledgeSource{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}
