package database

import (
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/model"
)

func TestParseDatabaseURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"sqlite scheme", "sqlite://./data/app.db", "./data/app.db", false},
		{"bare path", "/var/lib/reviewgate.db", "/var/lib/reviewgate.db", false},
		{"empty sqlite path", "sqlite://", "", true},
		{"unsupported scheme", "postgres://localhost/db", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDatabaseURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDatabaseURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseDatabaseURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitAndMigrate(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := Init("sqlite://" + dbPath); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// Second Init is a no-op
	if err := Init("sqlite://" + filepath.Join(t.TempDir(), "other.db")); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}

	if err := HealthCheck(); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	// All tables exist after migration
	for _, m := range model.AllModels() {
		if !Get().Migrator().HasTable(m) {
			t.Errorf("missing table for model %T", m)
		}
	}

	// Basic write through the connection
	tenant := &model.Tenant{ID: "tenant0000000000001x", Slug: "t1"}
	if err := Get().Create(tenant).Error; err != nil {
		t.Fatalf("Create tenant error = %v", err)
	}

	var count int64
	Get().Model(&model.Tenant{}).Count(&count)
	if count != 1 {
		t.Errorf("tenant count = %d, want 1", count)
	}

	if err := Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestTransactionRollback(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	dbPath := filepath.Join(t.TempDir(), "tx.db")
	if err := Init("sqlite://" + dbPath); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// A failed transaction leaves no rows behind
	wantErr := errors.New("rollback")
	err := Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model.Tenant{ID: "tenant0000000000002x", Slug: "tx-tenant"}).Error; err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Transaction() error = %v, want %v", err, wantErr)
	}

	var count int64
	Get().Model(&model.Tenant{}).Where("slug = ?", "tx-tenant").Count(&count)
	if count != 0 {
		t.Errorf("rolled-back tenant persisted, count = %d", count)
	}
}
