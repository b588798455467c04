package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newRedisTestStorage(t *testing.T) *RedisStorage {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis tests")
	}

	prefix := fmt.Sprintf("rpcguard-test-%d", time.Now().UnixNano())
	s, err := NewRedisStorage(Config{RedisAddr: addr, RedisKeyPrefix: prefix})
	if err != nil {
		t.Fatalf("failed to create redis storage: %v", err)
	}
	t.Cleanup(func() {
		s.client.Del(context.Background(), s.whitelistKey, s.blacklistKey)
		s.Close()
	})
	return s
}

func TestRedisStorage(t *testing.T) {
	s := newRedisTestStorage(t)
	runStorageSuite(t, s)
}

func TestRedisStorageKeys(t *testing.T) {
	s := newRedisStorage(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer s.Close()

	if s.whitelistKey != "rpcguard:whitelist" {
		t.Errorf("unexpected whitelist key %q", s.whitelistKey)
	}
	if s.blacklistKey != "rpcguard:blacklist" {
		t.Errorf("unexpected blacklist key %q", s.blacklistKey)
	}
}

func TestRedisStorageErrors(t *testing.T) {
	t.Run("Missing Address", func(t *testing.T) {
		if _, err := NewRedisStorage(Config{}); err == nil {
			t.Error("expected error for empty address")
		}
	})

	t.Run("Bad URL", func(t *testing.T) {
		if _, err := NewRedisStorage(Config{RedisAddr: "redis://:bad@host:notaport/x"}); err == nil {
			t.Error("expected error for malformed URL")
		}
	})
}
