package storage

import (
	"path/filepath"
	"rpcguard/internal/models"
	"testing"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()

	t.Run("GetSupportedProviders", func(t *testing.T) {
		providers := factory.GetSupportedProviders()
		expected := []string{"json", "memory", "postgres", "sqlite", "redis"}

		if len(providers) != len(expected) {
			t.Fatalf("Expected %d providers, got %d", len(expected), len(providers))
		}
		for i, provider := range expected {
			if providers[i] != provider {
				t.Errorf("Expected provider %s at index %d, got %v", provider, i, providers)
			}
		}
	})

	t.Run("ValidateConfig", func(t *testing.T) {
		tests := []struct {
			name      string
			config    models.StorageConfig
			expectErr bool
		}{
			{name: "valid json config", config: models.StorageConfig{Type: "json", Path: "/tmp/test.json"}},
			{name: "json without path", config: models.StorageConfig{Type: "json"}, expectErr: true},
			{name: "valid memory config", config: models.StorageConfig{Type: "memory"}},
			{
				name:   "valid sqlite config",
				config: models.StorageConfig{Type: "sqlite", Database: models.DatabaseConfig{DSN: "file.db"}},
			},
			{name: "postgres without dsn", config: models.StorageConfig{Type: "postgres"}, expectErr: true},
			{
				name:   "valid redis config",
				config: models.StorageConfig{Type: "redis", Redis: models.RedisConfig{Addr: "localhost:6379"}},
			},
			{name: "redis without addr", config: models.StorageConfig{Type: "redis"}, expectErr: true},
			{name: "invalid storage type", config: models.StorageConfig{Type: "etcd"}, expectErr: true},
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

	t.Run("Create", func(t *testing.T) {
		mem, err := factory.Create(models.StorageConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("Failed to create memory storage: %v", err)
		}
		mem.Close()

		js, err := factory.Create(models.StorageConfig{Type: "json", Path: filepath.Join(t.TempDir(), "a.json")})
		if err != nil {
			t.Fatalf("Failed to create JSON storage: %v", err)
		}
		js.Close()

		lite, err := factory.Create(models.StorageConfig{
			Type:     "sqlite",
			Database: models.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "a.db")},
		})
		if err != nil {
			t.Fatalf("Failed to create SQLite storage: %v", err)
		}
		lite.Close()

		if _, err := factory.Create(models.StorageConfig{Type: "etcd"}); err == nil {
			t.Error("Expected error for unsupported type")
		}
	})
}
