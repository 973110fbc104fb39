package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// InvalidationChannel carries "{org}:{version}" after every bump.
const InvalidationChannel = "gl.bump"

// LocalVersionTTL bounds how long a version is served from process memory
// before it is re-read from Redis.
const LocalVersionTTL = 5 * time.Second

type localVersion struct {
	ver int64
	at  time.Time
}

// ReportCache memoises rendered reports in Redis under per-organization
// version keys. Bumping the version orphans every cached report of that
// organization; entries then expire through their TTL. Versions are also
// held in process memory; peers' bumps arrive over InvalidationChannel.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group

	mu       sync.RWMutex
	versions map[int64]localVersion
	now      func() time.Time
}

// NewReportCache instantiates the cache. A nil client disables caching.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl, versions: make(map[int64]localVersion), now: time.Now}
}

func (c *ReportCache) local(orgID int64) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lv, ok := c.versions[orgID]
	if !ok || c.now().Sub(lv.at) > LocalVersionTTL {
		return 0, false
	}
	return lv.ver, true
}

// remember records ver unless a fresher, higher version is already held.
func (c *ReportCache) remember(orgID, ver int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if lv, ok := c.versions[orgID]; ok && lv.ver > ver && now.Sub(lv.at) <= LocalVersionTTL {
		return
	}
	c.versions[orgID] = localVersion{ver: ver, at: now}
}

func versionKey(orgID int64) string {
	return "gl:" + strconv.FormatInt(orgID, 10) + ":version"
}

// Version returns the organization's cache version, initialising it when missing.
func (c *ReportCache) Version(ctx context.Context, orgID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if ver, ok := c.local(orgID); ok {
		return ver, nil
	}
	key := versionKey(orgID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) || (err == nil && ver <= 0) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		ver, err = c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	c.remember(orgID, ver)
	return ver, nil
}

// Key composes a versioned report key.
func (c *ReportCache) Key(ctx context.Context, orgID int64, parts ...string) (string, error) {
	base := "gl:" + strconv.FormatInt(orgID, 10) + ":" + strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return base, nil
	}
	ver, err := c.Version(ctx, orgID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", base, ver), nil
}

// FetchJSON decodes the cached value at key into dest, calling loader and
// storing its result on a miss. Concurrent misses for one key share a
// single loader call.
func (c *ReportCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	raw, err := c.load(ctx, key, loader)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (c *ReportCache) load(ctx context.Context, key string, loader func(context.Context) (any, error)) ([]byte, error) {
	build := func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if c != nil && c.client != nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				return nil, err
			}
		}
		return raw, nil
	}
	if c == nil {
		v, err := build()
		if err != nil {
			return nil, err
		}
		return v.([]byte), nil
	}
	ch := c.group.DoChan(key, build)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Bump invalidates every cached report of orgID and notifies other instances.
func (c *ReportCache) Bump(ctx context.Context, orgID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(orgID)).Result()
	if err != nil {
		return err
	}
	c.remember(orgID, ver)
	payload := strconv.FormatInt(orgID, 10) + ":" + strconv.FormatInt(ver, 10)
	return c.client.Publish(ctx, InvalidationChannel, payload).Err()
}

// ListenForInvalidation applies bumps published by other instances to the
// in-process versions until ctx ends.
func (c *ReportCache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, InvalidationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if orgID, ver, ok := parseBump(msg.Payload); ok {
					c.remember(orgID, ver)
				}
			}
		}
	}()
	return nil
}

func parseBump(payload string) (int64, int64, bool) {
	org, ver, found := strings.Cut(payload, ":")
	if !found {
		return 0, 0, false
	}
	orgID, err := strconv.ParseInt(org, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	v, err := strconv.ParseInt(ver, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return orgID, v, true
}
