package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// resyncInterval bounds how long a listener trusts its local version
// without re-reading Redis.
const resyncInterval = 30 * time.Second

// Versioned is a namespaced JSON cache invalidated by bumping a version
// counter. Keys embed the version, so a bump orphans every older entry.
type Versioned struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration

	// local mirrors the Redis version while a listener is running.
	local     atomic.Int64
	listening atomic.Bool
}

// NewVersioned builds a cache for the namespace. A nil client disables
// caching and every fetch goes straight to the loader.
func NewVersioned(client *redis.Client, namespace string, ttl time.Duration) *Versioned {
	return &Versioned{client: client, namespace: namespace, ttl: ttl}
}

func (c *Versioned) versionKey() string {
	return c.namespace + ":version"
}

// Channel is the pub/sub channel version bumps are announced on.
func (c *Versioned) Channel() string {
	return c.namespace + ".bump"
}

// Version returns the current cache version, initialising when missing.
// While ListenForInvalidation runs the locally tracked version is used
// instead of a Redis round trip.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if c.listening.Load() {
		if ver := c.local.Load(); ver > 0 {
			return ver, nil
		}
	}
	ver, err := c.readVersion(ctx)
	if err != nil {
		return 0, err
	}
	c.observe(ver)
	return ver, nil
}

func (c *Versioned) readVersion(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey()).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, c.versionKey(), ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// observe raises the local version; it never moves backwards.
func (c *Versioned) observe(ver int64) {
	for {
		cur := c.local.Load()
		if ver <= cur || c.local.CompareAndSwap(cur, ver) {
			return
		}
	}
}

// Key composes a versioned cache key inside the namespace.
func (c *Versioned) Key(ctx context.Context, parts ...string) (string, error) {
	if c == nil {
		return strings.Join(parts, ":"), nil
	}
	joined := strings.Join(append([]string{c.namespace}, parts...), ":")
	if c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Versioned) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// SetJSON stores a value under an unversioned key in the namespace.
func (c *Versioned) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return errors.New("cache: redis not configured")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.namespace+":"+key, raw, ttl).Err()
}

// GetJSON loads a value stored with SetJSON. The boolean is false when the
// key does not exist.
func (c *Versioned) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, errors.New("cache: redis not configured")
	}
	payload, err := c.client.Get(ctx, c.namespace+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(payload, dest)
}

// Bump invalidates the namespace by incrementing its version and
// announcing the new version.
func (c *Versioned) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, c.versionKey()).Result()
	if err != nil {
		return err
	}
	c.observe(ver)
	return c.client.Publish(ctx, c.Channel(), strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation keeps the local version in step with bumps
// published by other processes until ctx ends. The subscription is
// confirmed and the version read before it returns; Redis is re-read
// periodically so a missed message cannot pin an old version.
func (c *Versioned) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, c.Channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("cache: subscribe %s: %w", c.Channel(), err)
	}
	ver, err := c.readVersion(ctx)
	if err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("cache: read %s: %w", c.versionKey(), err)
	}
	c.observe(ver)
	c.listening.Store(true)

	go func() {
		defer func() {
			c.listening.Store(false)
			_ = pubsub.Close()
		}()
		ticker := time.NewTicker(resyncInterval)
		defer ticker.Stop()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ver, err := c.readVersion(ctx); err == nil {
					c.observe(ver)
				}
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					c.observe(ver)
				}
			}
		}
	}()
	return nil
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
