package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/pkg/idgen"
)

// ConfigStore defines operations for TenantAiConfig and CheckConfig models.
type ConfigStore interface {
	// GetAiConfig returns (nil, nil) when the tenant has no AI config row.
	GetAiConfig(tenantID string) (*model.TenantAiConfig, error)
	UpsertAiConfig(cfg *model.TenantAiConfig) error

	ListCheckConfigs(tenantID string) ([]model.CheckConfig, error)
	UpsertCheckConfig(cfg *model.CheckConfig) error
}

type configStore struct {
	db *gorm.DB
}

func newConfigStore(db *gorm.DB) ConfigStore {
	return &configStore{db: db}
}

func (s *configStore) GetAiConfig(tenantID string) (*model.TenantAiConfig, error) {
	var cfg model.TenantAiConfig
	err := s.db.First(&cfg, "tenant_id = ?", tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (s *configStore) UpsertAiConfig(cfg *model.TenantAiConfig) error {
	existing, err := s.GetAiConfig(cfg.TenantID)
	if err != nil {
		return err
	}
	if existing != nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		return s.db.Save(cfg).Error
	}
	if cfg.ID == "" {
		cfg.ID = idgen.NewID()
	}
	return s.db.Create(cfg).Error
}

func (s *configStore) ListCheckConfigs(tenantID string) ([]model.CheckConfig, error) {
	var configs []model.CheckConfig
	err := s.db.Where("tenant_id = ?", tenantID).Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *configStore) UpsertCheckConfig(cfg *model.CheckConfig) error {
	var existing model.CheckConfig
	err := s.db.First(&existing,
		"tenant_id = ? AND check_key = ?", cfg.TenantID, cfg.CheckKey).Error
	if err == nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		return s.db.Save(cfg).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if cfg.ID == "" {
		cfg.ID = idgen.NewID()
	}
	return s.db.Create(cfg).Error
}
