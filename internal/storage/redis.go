package storage

import (
	"context"
	"fmt"
	"rpcguard/internal/models"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps the whitelist in a set and the blacklist in a sorted set
// scored by expiry (unix milliseconds), so expired entries can be purged with
// a single range delete.
type RedisStorage struct {
	client       *redis.Client
	whitelistKey string
	blacklistKey string
}

// NewRedisStorage connects to config.RedisAddr, which may be a host:port pair
// or a redis:// URL.
func NewRedisStorage(config Config) (*RedisStorage, error) {
	if config.RedisAddr == "" {
		return nil, fmt.Errorf("address is required for Redis storage")
	}

	var opts *redis.Options
	if strings.HasPrefix(config.RedisAddr, "redis://") || strings.HasPrefix(config.RedisAddr, "rediss://") {
		parsed, err := redis.ParseURL(config.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		}
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return newRedisStorage(client, config.RedisKeyPrefix), nil
}

func newRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "rpcguard"
	}
	return &RedisStorage{
		client:       client,
		whitelistKey: prefix + ":whitelist",
		blacklistKey: prefix + ":blacklist",
	}
}

func (rs *RedisStorage) Whitelist(ctx context.Context) ([]string, error) {
	ids, err := rs.client.SMembers(ctx, rs.whitelistKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist: %w", err)
	}
	sortStrings(ids)
	return ids, nil
}

func (rs *RedisStorage) SaveWhitelist(ctx context.Context, identifier string) error {
	if err := checkIdentifier(identifier); err != nil {
		return err
	}
	if err := rs.client.SAdd(ctx, rs.whitelistKey, identifier).Err(); err != nil {
		return fmt.Errorf("failed to save whitelist entry: %w", err)
	}
	return nil
}

func (rs *RedisStorage) DeleteWhitelist(ctx context.Context, identifier string) error {
	if err := rs.client.SRem(ctx, rs.whitelistKey, identifier).Err(); err != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	return nil
}

func (rs *RedisStorage) Blacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	members, err := rs.client.ZRangeWithScores(ctx, rs.blacklistKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist: %w", err)
	}

	entries := make([]models.BlacklistEntry, 0, len(members))
	for _, z := range members {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, models.BlacklistEntry{Identifier: id, ExpiresAt: scoreToTime(z.Score)})
	}
	sortEntries(entries)
	return entries, nil
}

func (rs *RedisStorage) SaveBlacklist(ctx context.Context, entry models.BlacklistEntry) error {
	if err := checkIdentifier(entry.Identifier); err != nil {
		return err
	}
	err := rs.client.ZAdd(ctx, rs.blacklistKey, redis.Z{
		Score:  timeToScore(entry.ExpiresAt),
		Member: entry.Identifier,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to save blacklist entry: %w", err)
	}
	return nil
}

func (rs *RedisStorage) DeleteBlacklist(ctx context.Context, identifier string) error {
	if err := rs.client.ZRem(ctx, rs.blacklistKey, identifier).Err(); err != nil {
		return fmt.Errorf("failed to delete blacklist entry: %w", err)
	}
	return nil
}

func (rs *RedisStorage) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error) {
	// "(" makes the bound exclusive: entries expiring exactly now survive.
	upper := "(" + strconv.FormatInt(now.UnixMilli(), 10)
	n, err := rs.client.ZRemRangeByScore(ctx, rs.blacklistKey, "-inf", upper).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to purge blacklist: %w", err)
	}
	return int(n), nil
}

func (rs *RedisStorage) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
