//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisAddr returns the address of the test Redis server from
// FSCONF_TEST_REDIS_ADDR, or "" when unset.
func RedisAddr() string {
	return os.Getenv("FSCONF_TEST_REDIS_ADDR")
}

// SkipIfNoRedis skips the test if the test Redis server is not reachable.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skip("test Redis not available: set FSCONF_TEST_REDIS_ADDR")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test Redis not reachable at %s: %v", addr, err)
	}
}

// RedisClient returns a client for the test Redis, closed on cleanup.
func RedisClient(t *testing.T) *redis.Client {
	t.Helper()
	SkipIfNoRedis(t)
	client := redis.NewClient(&redis.Options{Addr: RedisAddr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// DeleteKeys removes keys from the test Redis, failing the test on error.
func DeleteKeys(t *testing.T, client *redis.Client, keys ...string) {
	t.Helper()
	if err := client.Del(context.Background(), keys...).Err(); err != nil {
		t.Fatalf("deleting %v: %v", keys, err)
	}
}
