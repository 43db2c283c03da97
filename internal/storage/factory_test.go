package storage

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"ratelimiter/internal/models"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()

	t.Run("GetSupportedProviders", func(t *testing.T) {
		providers := factory.GetSupportedProviders()
		expected := []string{"none", "memory", "postgres", "sqlite"}

		if !slices.Equal(providers, expected) {
			t.Errorf("Expected providers %v, got %v", expected, providers)
		}
	})

	t.Run("ValidateConfig", func(t *testing.T) {
		tests := []struct {
			name      string
			config    models.StorageConfig
			expectErr bool
		}{
			{
				name:      "valid none config",
				config:    models.StorageConfig{Type: "none"},
				expectErr: false,
			},
			{
				name:      "valid memory config",
				config:    models.StorageConfig{Type: "memory", MaxEntries: 10},
				expectErr: false,
			},
			{
				name:      "sqlite without dsn",
				config:    models.StorageConfig{Type: "sqlite"},
				expectErr: true,
			},
			{
				name: "postgres with dsn",
				config: models.StorageConfig{
					Type:     "postgres",
					Database: models.DatabaseConfig{DSN: "postgres://localhost/rl"},
				},
				expectErr: false,
			},
			{
				name:      "invalid storage type",
				config:    models.StorageConfig{Type: "invalid"},
				expectErr: true,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := factory.ValidateConfig(tt.config)
				if tt.expectErr && err == nil {
					t.Error("Expected error but got none")
				}
				if !tt.expectErr && err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			})
		}
	})

	t.Run("CreateNone", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{Type: "none"})
		if err != nil {
			t.Fatalf("Failed to create none storage: %v", err)
		}
		if s != nil {
			t.Errorf("Expected nil store for none, got %T", s)
		}
	})

	t.Run("CreateMemory", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{Type: "memory", MaxEntries: 5})
		if err != nil {
			t.Fatalf("Failed to create memory storage: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*MemoryStorage); !ok {
			t.Errorf("Expected *MemoryStorage, got %T", s)
		}
	})

	t.Run("CreateSQLite", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{
			Type:     "sqlite",
			Database: models.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "factory.db")},
		})
		if err != nil {
			t.Fatalf("Failed to create sqlite storage: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*SQLiteStorage); !ok {
			t.Errorf("Expected *SQLiteStorage, got %T", s)
		}
	})

	t.Run("CreateUnsupported", func(t *testing.T) {
		_, err := factory.Create(models.StorageConfig{Type: "mongo"})
		if !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("Expected ErrUnsupportedType, got %v", err)
		}
	})
}
