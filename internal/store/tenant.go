package store

import (
	"crypto/subtle"
	"errors"

	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/pkg/idgen"
)

// TenantStore defines operations for the Tenant model.
type TenantStore interface {
	Create(tenant *model.Tenant) error
	GetByID(id string) (*model.Tenant, error)
	GetBySlug(slug string) (*model.Tenant, error)
	// GetByWebhookSecret resolves the tenant owning a provider webhook secret.
	// Returns (nil, nil) when no tenant matches.
	GetByWebhookSecret(provider, secret string) (*model.Tenant, error)
	// GetOrCreateBySlug bootstraps a tenant on demand.
	GetOrCreateBySlug(slug string) (*model.Tenant, error)
	Update(tenant *model.Tenant) error
}

type tenantStore struct {
	db *gorm.DB
}

func newTenantStore(db *gorm.DB) TenantStore {
	return &tenantStore{db: db}
}

func (s *tenantStore) Create(tenant *model.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = idgen.NewID()
	}
	return s.db.Create(tenant).Error
}

func (s *tenantStore) GetByID(id string) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.First(&tenant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *tenantStore) GetBySlug(slug string) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.First(&tenant, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *tenantStore) GetByWebhookSecret(provider, secret string) (*model.Tenant, error) {
	if secret == "" {
		return nil, nil
	}
	// Secrets live in a JSON column; the tenant count is small so a scan
	// with constant-time comparison per row is acceptable here.
	var tenants []model.Tenant
	if err := s.db.Find(&tenants).Error; err != nil {
		return nil, err
	}
	for i := range tenants {
		if stored := tenants[i].WebhookSecret(provider); stored != "" && secureCompare(stored, secret) {
			return &tenants[i], nil
		}
	}
	return nil, nil
}

func (s *tenantStore) GetOrCreateBySlug(slug string) (*model.Tenant, error) {
	tenant, err := s.GetBySlug(slug)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tenant = &model.Tenant{
		ID:             idgen.NewID(),
		Slug:           slug,
		WebhookSecrets: model.JSONMap{},
	}
	if err := s.db.Create(tenant).Error; err != nil {
		// Concurrent creation of the same slug loses the race; re-read
		if existing, lookupErr := s.GetBySlug(slug); lookupErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return tenant, nil
}

func (s *tenantStore) Update(tenant *model.Tenant) error {
	return s.db.Save(tenant).Error
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
