package storage

import (
	"fmt"
	"rpcguard/internal/models"
)

// Factory provides a centralized way to create storage instances based on configuration.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage provider based on the provided configuration.
// Supported providers:
//   - json: single JSON file, rewritten on every change
//   - memory: in-memory maps (for testing/development)
//   - postgres: PostgreSQL via pgx, migrated with goose
//   - sqlite: embedded SQLite, migrated with goose
//   - redis: set and sorted set in Redis
func (f *Factory) Create(config models.StorageConfig) (Storage, error) {
	storageConfig := Config{
		Type:             config.Type,
		Path:             config.Path,
		ConnectionString: config.Database.DSN,
		MaxOpenConns:     config.Database.MaxOpenConns,
		ConnMaxLifetime:  config.Database.ConnMaxLifetime,
		MigrationsTable:  config.Database.MigrationsTable,
		RedisAddr:        config.Redis.Addr,
		RedisPassword:    config.Redis.Password,
		RedisDB:          config.Redis.DB,
		RedisPoolSize:    config.Redis.PoolSize,
		RedisKeyPrefix:   config.Redis.KeyPrefix,
	}

	var (
		s   Storage
		err error
	)
	switch config.Type {
	case models.StorageTypeJSON:
		s, err = NewJSONStorage(storageConfig)
	case models.StorageTypeMemory:
		s, err = NewMemoryStorage(storageConfig)
	case models.StorageTypePostgres:
		s, err = NewPostgresStorage(storageConfig)
	case models.StorageTypeSQLite:
		s, err = NewSQLiteStorage(storageConfig)
	case models.StorageTypeRedis:
		s, err = NewRedisStorage(storageConfig)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.StorageTypeJSON, models.StorageTypeMemory, models.StorageTypePostgres, models.StorageTypeSQLite, models.StorageTypeRedis}
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeJSON:
		if config.Path == "" {
			return fmt.Errorf("path is required for JSON storage")
		}
	case models.StorageTypeMemory:
		// Memory storage requires no additional configuration
	case models.StorageTypePostgres, models.StorageTypeSQLite:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	case models.StorageTypeRedis:
		if config.Redis.Addr == "" {
			return fmt.Errorf("address is required for redis storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}
	return nil
}
