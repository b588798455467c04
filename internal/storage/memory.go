package storage

import (
	"context"
	"rpcguard/internal/models"
	"sort"
	"sync"
	"time"
)

// MemoryStorage implements the Storage interface using in-memory maps.
// This provider is ideal for development and testing; entries are lost on
// restart.
type MemoryStorage struct {
	mu        sync.RWMutex
	whitelist map[string]struct{}
	blacklist map[string]time.Time
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		whitelist: make(map[string]struct{}),
		blacklist: make(map[string]time.Time),
	}, nil
}

// Whitelist returns identifiers in sorted order
func (m *MemoryStorage) Whitelist(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.whitelist))
	for id := range m.whitelist {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStorage) SaveWhitelist(ctx context.Context, identifier string) error {
	if err := checkIdentifier(identifier); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whitelist[identifier] = struct{}{}
	return nil
}

func (m *MemoryStorage) DeleteWhitelist(ctx context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.whitelist, identifier)
	return nil
}

// Blacklist returns entries ordered by identifier
func (m *MemoryStorage) Blacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]models.BlacklistEntry, 0, len(m.blacklist))
	for id, expiresAt := range m.blacklist {
		entries = append(entries, models.BlacklistEntry{Identifier: id, ExpiresAt: expiresAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identifier < entries[j].Identifier
	})
	return entries, nil
}

func (m *MemoryStorage) SaveBlacklist(ctx context.Context, entry models.BlacklistEntry) error {
	if err := checkIdentifier(entry.Identifier); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklist[entry.Identifier] = entry.ExpiresAt
	return nil
}

func (m *MemoryStorage) DeleteBlacklist(ctx context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blacklist, identifier)
	return nil
}

func (m *MemoryStorage) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, expiresAt := range m.blacklist {
		if expiresAt.Before(now) {
			delete(m.blacklist, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryStorage) Close() error {
	return nil
}
