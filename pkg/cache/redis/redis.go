// Package redis implements the shared tier of the report cache on Redis,
// using the rueidis client. Payloads are stored as raw strings under a
// configurable key prefix.
package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bank-analytics/pkg/cache"

	"github.com/redis/rueidis"
)

// RedisCache is a cache.Layer backed by Redis.
type RedisCache struct {
	client rueidis.Client
	config RedisCacheConfig
}

var _ cache.Layer = (*RedisCache)(nil)

// RedisCacheConfig configures the Redis layer.
type RedisCacheConfig struct {
	cache.LayerConfig

	// Addr is the Redis server address for single node mode.
	// Examples: "localhost:6379", "redis.example.com:6379"
	Addr string
	// ClusterAddrs is a list of Redis cluster node addresses.
	// If set, cluster mode is enabled automatically.
	ClusterAddrs []string
	Username     string
	Password     string
	// DB is the Redis database number. Cluster mode only supports DB 0.
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// Sentinel configuration for high availability
	SentinelMasterSet string
	// SentinelAddrs is a list of Redis Sentinel addresses.
	// If set, sentinel mode is enabled.
	SentinelAddrs    []string
	SentinelUsername string
	SentinelPassword string
}

// DefaultRedisCacheConfig returns a single node configuration on localhost.
func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		LayerConfig: cache.LayerConfig{
			Name:       "redis",
			DefaultTTL: time.Hour,
			MaxTTL:     24 * time.Hour,
		},
		Addr:         "localhost:6379",
		KeyPrefix:    "bank-analytics:",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// ClusterCacheConfig returns a configuration for Redis Cluster mode.
func ClusterCacheConfig(name string, clusterAddrs []string, password string) RedisCacheConfig {
	config := DefaultRedisCacheConfig()
	config.Name = name
	config.ClusterAddrs = clusterAddrs
	config.Password = password
	config.Addr = ""
	config.DB = 0
	return config
}

// SentinelCacheConfig returns a configuration for Redis Sentinel mode.
func SentinelCacheConfig(name string, sentinelAddrs []string, masterSet, password string) RedisCacheConfig {
	config := DefaultRedisCacheConfig()
	config.Name = name
	config.SentinelAddrs = sentinelAddrs
	config.SentinelMasterSet = masterSet
	config.Password = password
	config.Addr = ""
	return config
}

// ConfigFromEnv starts from DefaultRedisCacheConfig and applies REDIS_ADDR,
// REDIS_CLUSTER_ADDRS (comma separated), REDIS_USERNAME, REDIS_PASSWORD,
// REDIS_DB and REDIS_KEY_PREFIX.
func ConfigFromEnv() (RedisCacheConfig, error) {
	config := DefaultRedisCacheConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Addr = addr
	}
	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		config.ClusterAddrs = strings.Split(addrs, ",")
		config.Addr = ""
	}
	config.Username = os.Getenv("REDIS_USERNAME")
	config.Password = os.Getenv("REDIS_PASSWORD")
	if db := os.Getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return config, fmt.Errorf("%w: REDIS_DB=%q", cache.ErrInvalidValue, db)
		}
		config.DB = n
	}
	if prefix := os.Getenv("REDIS_KEY_PREFIX"); prefix != "" {
		config.KeyPrefix = prefix
	}
	return config, config.Validate()
}

// NewRedisCache connects to Redis and verifies the connection with PING.
func NewRedisCache(config RedisCacheConfig) (*RedisCache, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case len(config.SentinelAddrs) > 0:
		initAddress = config.SentinelAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set Addr, ClusterAddrs, or SentinelAddrs)")
	}

	clientOpts := rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		MaxFlushDelay:    100 * time.Microsecond,
	}

	if len(config.SentinelAddrs) > 0 {
		clientOpts.Sentinel = rueidis.SentinelOption{
			MasterSet: config.SentinelMasterSet,
			Username:  config.SentinelUsername,
			Password:  config.SentinelPassword,
		}
	}

	client, err := rueidis.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &RedisCache{
		client: client,
		config: config,
	}, nil
}

func (r *RedisCache) key(key string) string {
	return r.config.KeyPrefix + key
}

// Get returns the payload stored under key.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}
	return data, nil
}

// Set stores value under key with the effective TTL of the layer.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	ttl = r.config.EffectiveTTL(ttl)
	cmd := r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(r.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Name returns the layer name.
func (r *RedisCache) Name() string {
	return r.config.Name
}

// Close closes the client.
func (r *RedisCache) Close() error {
	r.client.Close()
	return nil
}

// Ping checks the connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of key, or ErrCacheMiss when absent.
func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	resp := r.client.Do(ctx, r.client.B().Ttl().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	seconds, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: failed to read response: %w", err)
	}

	switch seconds {
	case -2:
		return 0, cache.ErrCacheMiss
	case -1:
		return -1, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

// FlushDB removes every key of the selected database. Used by tests.
func (r *RedisCache) FlushDB(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Flushdb().Build()).Error(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}
	return nil
}
