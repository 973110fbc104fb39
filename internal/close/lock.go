package close

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[2])
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serialises rollovers across processes with a Redis lease and raises
// the organization's maintenance flag while the lease is held.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker constructs a Locker. A nil client yields leases that guard nothing,
// leaving the in-process Machine as the only exclusion.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// Lease is a held rollover lock.
type Lease struct {
	locker *Locker
	orgID  int64
	token  string
}

// Acquire takes the organization's rollover lock or fails with ErrRolloverInProgress.
func (l *Locker) Acquire(ctx context.Context, orgID int64) (*Lease, error) {
	lease := &Lease{locker: l, orgID: orgID, token: uuid.NewString()}
	if l == nil || l.client == nil {
		return lease, nil
	}
	ok, err := l.client.SetNX(ctx, shared.RolloverLockKey(orgID), lease.token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRolloverInProgress
	}
	if err := l.client.Set(ctx, shared.MaintenanceKey(orgID), lease.token, l.ttl).Err(); err != nil {
		_ = lease.Release(ctx)
		return nil, err
	}
	return lease, nil
}

// Release drops the lock and the maintenance flag if the lease still owns them.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.locker == nil || l.locker.client == nil {
		return nil
	}
	keys := []string{shared.RolloverLockKey(l.orgID), shared.MaintenanceKey(l.orgID)}
	err := releaseScript.Run(ctx, l.locker.client, keys, l.token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// UnderMaintenance reports whether any process holds the organization's rollover.
func (l *Locker) UnderMaintenance(ctx context.Context, orgID int64) (bool, error) {
	if l == nil || l.client == nil {
		return false, nil
	}
	n, err := l.client.Exists(ctx, shared.MaintenanceKey(orgID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
