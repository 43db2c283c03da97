package storage

import (
	"fmt"

	"ratelimiter/internal/models"
)

// Factory provides a centralized way to create violation stores based on
// configuration.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a violation store based on the provided configuration.
// Supported providers:
//   - none: violations are discarded (returns nil, nil)
//   - memory: bounded in-process ring buffer
//   - sqlite: SQLite database file
//   - postgres: PostgreSQL via a pgx connection pool
func (f *Factory) Create(config models.StorageConfig) (ViolationStore, error) {
	storageConfig := Config{
		Type:             config.Type,
		ConnectionString: config.Database.DSN,
		MaxEntries:       config.MaxEntries,
		MaxOpenConns:     config.Database.MaxOpenConns,
		MaxIdleConns:     config.Database.MaxIdleConns,
	}

	switch config.Type {
	case models.StorageTypeNone, "":
		return nil, nil
	case models.StorageTypeMemory:
		return NewMemoryStorage(storageConfig)
	case models.StorageTypePostgres:
		return NewPostgresStorage(storageConfig)
	case models.StorageTypeSQLite:
		return NewSQLiteStorage(storageConfig)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, config.Type)
	}
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.StorageTypeNone, models.StorageTypeMemory, models.StorageTypePostgres, models.StorageTypeSQLite}
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeNone, models.StorageTypeMemory:
		// No connection settings required
	case models.StorageTypePostgres, models.StorageTypeSQLite:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, config.Type)
	}
	return nil
}
