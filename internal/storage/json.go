package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"rpcguard/internal/models"
	"sort"
	"sync"
	"time"
)

// JSONStorage implements the Storage interface using a single JSON file. The
// file is read once at startup and rewritten on every mutation; the in-memory
// copy is authoritative while the process runs.
type JSONStorage struct {
	filePath string
	mu       sync.RWMutex
	data     *JSONData
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Whitelist   []string                `json:"whitelist"`
	Blacklist   []models.BlacklistEntry `json:"blacklist"`
	LastUpdated time.Time               `json:"last_updated"`
}

// NewJSONStorage creates a new JSON-based storage instance
func NewJSONStorage(config Config) (*JSONStorage, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON storage")
	}

	storage := &JSONStorage{filePath: config.Path}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		return j.saveData(&JSONData{
			Whitelist: []string{},
			Blacklist: []models.BlacklistEntry{},
		})
	}
	return nil
}

func (j *JSONStorage) loadData() error {
	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	j.mu.Lock()
	j.data = &data
	j.mu.Unlock()
	return nil
}

// saveData replaces the file atomically through a temporary sibling.
func (j *JSONStorage) saveData(data *JSONData) error {
	data.LastUpdated = time.Now()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp := j.filePath + ".tmp"
	if err := os.WriteFile(tmp, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, j.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	return nil
}

func (j *JSONStorage) Whitelist(ctx context.Context) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	ids := make([]string, len(j.data.Whitelist))
	copy(ids, j.data.Whitelist)
	sort.Strings(ids)
	return ids, nil
}

func (j *JSONStorage) SaveWhitelist(ctx context.Context, identifier string) error {
	if err := checkIdentifier(identifier); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, id := range j.data.Whitelist {
		if id == identifier {
			return nil
		}
	}
	j.data.Whitelist = append(j.data.Whitelist, identifier)
	return j.saveData(j.data)
}

func (j *JSONStorage) DeleteWhitelist(ctx context.Context, identifier string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i, id := range j.data.Whitelist {
		if id == identifier {
			j.data.Whitelist = append(j.data.Whitelist[:i], j.data.Whitelist[i+1:]...)
			return j.saveData(j.data)
		}
	}
	return nil
}

func (j *JSONStorage) Blacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	entries := make([]models.BlacklistEntry, len(j.data.Blacklist))
	copy(entries, j.data.Blacklist)
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].Identifier < entries[b].Identifier
	})
	return entries, nil
}

func (j *JSONStorage) SaveBlacklist(ctx context.Context, entry models.BlacklistEntry) error {
	if err := checkIdentifier(entry.Identifier); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for i, existing := range j.data.Blacklist {
		if existing.Identifier == entry.Identifier {
			j.data.Blacklist[i] = entry
			return j.saveData(j.data)
		}
	}
	j.data.Blacklist = append(j.data.Blacklist, entry)
	return j.saveData(j.data)
}

func (j *JSONStorage) DeleteBlacklist(ctx context.Context, identifier string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i, existing := range j.data.Blacklist {
		if existing.Identifier == identifier {
			j.data.Blacklist = append(j.data.Blacklist[:i], j.data.Blacklist[i+1:]...)
			return j.saveData(j.data)
		}
	}
	return nil
}

func (j *JSONStorage) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.data.Blacklist[:0]
	for _, entry := range j.data.Blacklist {
		if !entry.Expired(now) {
			kept = append(kept, entry)
		}
	}
	removed := len(j.data.Blacklist) - len(kept)
	j.data.Blacklist = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, j.saveData(j.data)
}

// Ping checks that the backing file is still accessible
func (j *JSONStorage) Ping(ctx context.Context) error {
	if _, err := os.Stat(j.filePath); err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	return nil
}

// Close is a no-op; every mutation is already flushed
func (j *JSONStorage) Close() error {
	return nil
}
