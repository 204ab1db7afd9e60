// Package store provides data access layer interfaces and implementations.
// This package abstracts database operations to improve maintainability
// and decouple business logic from specific database implementations.
package store

import "gorm.io/gorm"

// Store aggregates all data store interfaces.
// It provides a single point of access for all database operations.
type Store interface {
	Tenant() TenantStore
	Repo() RepoStore
	Run() RunStore
	Knowledge() KnowledgeStore
	Config() ConfigStore

	// DB returns the underlying database connection for advanced operations.
	// Use sparingly - prefer using specific store methods.
	DB() *gorm.DB

	// Transaction executes operations within a database transaction.
	Transaction(fn func(Store) error) error
}

// gormStore implements Store interface using GORM.
type gormStore struct {
	db             *gorm.DB
	tenantStore    TenantStore
	repoStore      RepoStore
	runStore       RunStore
	knowledgeStore KnowledgeStore
	configStore    ConfigStore
}

// NewStore creates a new Store instance with GORM backend.
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:             db,
		tenantStore:    newTenantStore(db),
		repoStore:      newRepoStore(db),
		runStore:       newRunStore(db),
		knowledgeStore: newKnowledgeStore(db),
		configStore:    newConfigStore(db),
	}
}

func (s *gormStore) Tenant() TenantStore {
	return s.tenantStore
}

func (s *gormStore) Repo() RepoStore {
	return s.repoStore
}

func (s *gormStore) Run() RunStore {
	return s.runStore
}

func (s *gormStore) Knowledge() KnowledgeStore {
	return s.knowledgeStore
}

func (s *gormStore) Config() ConfigStore {
	return s.configStore
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
