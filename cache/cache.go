// Package cache keeps per-user debt lists in Redis and publishes a change
// signal whenever one of them is invalidated.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	versionPrefix = "debts:version:"
	channelPrefix = "debts:changed:"

	loadTimeout = 10 * time.Second
)

// New creates a Redis client and checks the server answers.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return client, nil
}

// Cache stores JSON values under keys carrying a per-scope version. Bumping
// the version orphans every key of the scope, which then expire by TTL.
//
// A nil *Cache is valid and caches nothing.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current version of scope, initialising it when missing.
func (c *Cache) Version(ctx context.Context, scope string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionPrefix + scope
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so a concurrent Bump isn't overwritten.
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes a key under scope with the scope's current version.
func (c *Cache) BuildKey(ctx context.Context, scope string, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"debts", scope}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, scope)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON decodes the value cached under key into dest, calling loader on a
// miss. Concurrent misses on the same key share one loader call.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		raw, err := load(ctx, loader)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	resultCh := c.group.DoChan(key, func() (any, error) {
		// Shared by every waiter on key, so one caller leaving must not cancel it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		raw, err := load(loadCtx, loader)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(loadCtx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

func load(ctx context.Context, loader func(context.Context) (any, error)) ([]byte, error) {
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

// Bump invalidates scope and notifies its subscribers.
func (c *Cache) Bump(ctx context.Context, scope string) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionPrefix+scope).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, channelPrefix+scope, strconv.FormatInt(ver, 10)).Err()
}

// Subscribe returns a channel that receives a value after every Bump of scope.
// Bursts are coalesced into one signal. The channel is closed when ctx ends.
func (c *Cache) Subscribe(ctx context.Context, scope string) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	if c == nil || c.client == nil {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}

	pubsub := c.client.Subscribe(ctx, channelPrefix+scope)
	// Wait for the confirmation so no Bump issued after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("cache: subscribe: %w", err)
	}

	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
