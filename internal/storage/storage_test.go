package storage

import (
	"context"
	"errors"
	"rpcguard/internal/models"
	"testing"
	"time"
)

// runStorageSuite exercises the behaviour every backend must share. The
// storage passed in must be empty.
func runStorageSuite(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("Ping() error: %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		ids, err := s.Whitelist(ctx)
		if err != nil {
			t.Fatalf("Whitelist() error: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected empty whitelist, got %v", ids)
		}
		entries, err := s.Blacklist(ctx)
		if err != nil {
			t.Fatalf("Blacklist() error: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty blacklist, got %v", entries)
		}
	})

	t.Run("Whitelist", func(t *testing.T) {
		for _, id := range []string{"bob", "alice", "bob"} {
			if err := s.SaveWhitelist(ctx, id); err != nil {
				t.Fatalf("SaveWhitelist(%q) error: %v", id, err)
			}
		}

		ids, err := s.Whitelist(ctx)
		if err != nil {
			t.Fatalf("Whitelist() error: %v", err)
		}
		if len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
			t.Errorf("expected [alice bob], got %v", ids)
		}

		if err := s.DeleteWhitelist(ctx, "alice"); err != nil {
			t.Fatalf("DeleteWhitelist() error: %v", err)
		}
		if err := s.DeleteWhitelist(ctx, "missing"); err != nil {
			t.Errorf("deleting a missing identifier should be a no-op, got %v", err)
		}

		ids, _ = s.Whitelist(ctx)
		if len(ids) != 1 || ids[0] != "bob" {
			t.Errorf("expected [bob], got %v", ids)
		}
		_ = s.DeleteWhitelist(ctx, "bob")
	})

	t.Run("Blacklist", func(t *testing.T) {
		if err := s.SaveBlacklist(ctx, models.BlacklistEntry{Identifier: "mallory", ExpiresAt: base.Add(time.Hour)}); err != nil {
			t.Fatalf("SaveBlacklist() error: %v", err)
		}
		if err := s.SaveBlacklist(ctx, models.BlacklistEntry{Identifier: "eve", ExpiresAt: base.Add(time.Minute)}); err != nil {
			t.Fatalf("SaveBlacklist() error: %v", err)
		}
		// Saving again replaces the expiry.
		if err := s.SaveBlacklist(ctx, models.BlacklistEntry{Identifier: "mallory", ExpiresAt: base.Add(2 * time.Hour)}); err != nil {
			t.Fatalf("SaveBlacklist() error: %v", err)
		}

		entries, err := s.Blacklist(ctx)
		if err != nil {
			t.Fatalf("Blacklist() error: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %v", entries)
		}
		if entries[0].Identifier != "eve" || entries[1].Identifier != "mallory" {
			t.Errorf("expected entries ordered by identifier, got %v", entries)
		}
		if !entries[1].ExpiresAt.Equal(base.Add(2 * time.Hour)) {
			t.Errorf("expected replaced expiry %v, got %v", base.Add(2*time.Hour), entries[1].ExpiresAt)
		}

		if err := s.DeleteBlacklist(ctx, "eve"); err != nil {
			t.Fatalf("DeleteBlacklist() error: %v", err)
		}
		if err := s.DeleteBlacklist(ctx, "missing"); err != nil {
			t.Errorf("deleting a missing identifier should be a no-op, got %v", err)
		}
		entries, _ = s.Blacklist(ctx)
		if len(entries) != 1 || entries[0].Identifier != "mallory" {
			t.Errorf("expected [mallory], got %v", entries)
		}
		_ = s.DeleteBlacklist(ctx, "mallory")
	})

	t.Run("PurgeExpiredBlacklist", func(t *testing.T) {
		_ = s.SaveBlacklist(ctx, models.BlacklistEntry{Identifier: "old", ExpiresAt: base.Add(-time.Minute)})
		_ = s.SaveBlacklist(ctx, models.BlacklistEntry{Identifier: "edge", ExpiresAt: base})
		_ = s.SaveBlacklist(ctx, models.BlacklistEntry{Identifier: "new", ExpiresAt: base.Add(time.Minute)})

		removed, err := s.PurgeExpiredBlacklist(ctx, base)
		if err != nil {
			t.Fatalf("PurgeExpiredBlacklist() error: %v", err)
		}
		if removed != 1 {
			t.Errorf("expected 1 purged entry, got %d", removed)
		}

		entries, _ := s.Blacklist(ctx)
		if len(entries) != 2 || entries[0].Identifier != "edge" || entries[1].Identifier != "new" {
			t.Errorf("expected [edge new] to survive, got %v", entries)
		}

		removed, err = s.PurgeExpiredBlacklist(ctx, base.Add(time.Hour))
		if err != nil {
			t.Fatalf("PurgeExpiredBlacklist() error: %v", err)
		}
		if removed != 2 {
			t.Errorf("expected 2 purged entries, got %d", removed)
		}
	})

	t.Run("EmptyIdentifier", func(t *testing.T) {
		if err := s.SaveWhitelist(ctx, "  "); !errors.Is(err, ErrEmptyIdentifier) {
			t.Errorf("expected ErrEmptyIdentifier, got %v", err)
		}
		if err := s.SaveBlacklist(ctx, models.BlacklistEntry{ExpiresAt: base}); !errors.Is(err, ErrEmptyIdentifier) {
			t.Errorf("expected ErrEmptyIdentifier, got %v", err)
		}
	})
}
