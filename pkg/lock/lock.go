// Package lock provides an optional cross-process lock per device, kept in
// Redis. The switch itself has no configuration lock, so two operators
// reconciling the same device at once would interleave truncation trials.
// Sharing a Redis instance between operators closes that gap.
package lock

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fsconf-network/fsconf/pkg/util"
)

// DefaultTTL bounds how long a crashed holder can block a device.
const DefaultTTL = time.Hour

// KeyPrefix is prepended to the device name to form the lock key.
const KeyPrefix = "FSCONF_LOCK|"

// acquireScript atomically creates the lock hash.
// Returns 1 on success, 0 if already locked.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseScript deletes the lock only for its holder.
// Returns 1 on success, 0 on holder mismatch, -1 if the key doesn't exist.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// Locker acquires and releases device locks.
type Locker struct {
	client *redis.Client
	holder string
	ttl    time.Duration
}

// New creates a locker on an existing client. The holder identity defaults
// to user@hostname.
func New(client *redis.Client, opts ...func(*Locker)) *Locker {
	l := &Locker{client: client, holder: Holder(), ttl: DefaultTTL}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dial connects to the Redis server at addr and returns a locker using it.
func Dial(ctx context.Context, addr string, opts ...func(*Locker)) (*Locker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to lock server %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

// WithHolder overrides the holder identity.
func WithHolder(holder string) func(*Locker) {
	return func(l *Locker) {
		l.holder = holder
	}
}

// WithTTL sets the lock expiry.
func WithTTL(ttl time.Duration) func(*Locker) {
	return func(l *Locker) {
		if ttl >= time.Second {
			l.ttl = ttl
		}
	}
}

// Acquire locks device. Returns util.ErrDeviceLocked if another holder has it.
func (l *Locker) Acquire(ctx context.Context, device string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	ttl := int(l.ttl / time.Second)

	result, err := acquireScript.Run(ctx, l.client, []string{KeyPrefix + device},
		l.holder, now, fmt.Sprintf("%d", ttl)).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", device, err)
	}
	if result == 0 {
		holder, since, _ := l.Holder(ctx, device)
		return fmt.Errorf("%s held by %s since %s: %w", device, holder, since.Format(time.RFC3339), util.ErrDeviceLocked)
	}
	util.WithDevice(device).Debugf("lock acquired by %s", l.holder)
	return nil
}

// Release unlocks device. Releasing a lock that does not exist succeeds.
func (l *Locker) Release(ctx context.Context, device string) error {
	result, err := releaseScript.Run(ctx, l.client, []string{KeyPrefix + device}, l.holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", device, err)
	}
	if result == 0 {
		return fmt.Errorf("lock holder mismatch for %s", device)
	}
	return nil
}

// Holder returns the current holder and acquisition time of device's lock.
// Returns ("", zero, nil) if no lock is held.
func (l *Locker) Holder(ctx context.Context, device string) (string, time.Time, error) {
	vals, err := l.client.HGetAll(ctx, KeyPrefix+device).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("getting lock holder for %s: %w", device, err)
	}
	if len(vals) == 0 {
		return "", time.Time{}, nil
	}
	acquired := time.Time{}
	if ts, ok := vals["acquired"]; ok {
		acquired, _ = time.Parse(time.RFC3339, ts)
	}
	return vals["holder"], acquired, nil
}

// Close closes the Redis client.
func (l *Locker) Close() error {
	return l.client.Close()
}

// Holder constructs the default holder identity: "user@hostname".
func Holder() string {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	hostname := "unknown"
	if h, err := os.Hostname(); err == nil {
		hostname = h
	}
	return fmt.Sprintf("%s@%s", username, hostname)
}
