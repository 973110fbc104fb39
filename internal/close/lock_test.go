package close_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	closepkg "github.com/odyssey-erp/odyssey-gl/internal/close"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

func newLocker(t *testing.T, ttl time.Duration) (*closepkg.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return closepkg.NewLocker(client, ttl), mr
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	locker, mr := newLocker(t, time.Minute)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, orgID)
	require.NoError(t, err)
	require.True(t, mr.Exists(shared.RolloverLockKey(orgID)))

	busy, err := locker.UnderMaintenance(ctx, orgID)
	require.NoError(t, err)
	require.True(t, busy)

	_, err = locker.Acquire(ctx, orgID)
	require.ErrorIs(t, err, closepkg.ErrRolloverInProgress)

	other, err := locker.Acquire(ctx, orgID+1)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	busy, err = locker.UnderMaintenance(ctx, orgID)
	require.NoError(t, err)
	require.False(t, busy)
	require.False(t, mr.Exists(shared.RolloverLockKey(orgID)))
}

func TestLockerReleaseKeepsForeignLease(t *testing.T) {
	locker, mr := newLocker(t, time.Minute)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, orgID)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	fresh, err := locker.Acquire(ctx, orgID)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	require.True(t, mr.Exists(shared.RolloverLockKey(orgID)))
	require.True(t, mr.Exists(shared.MaintenanceKey(orgID)))

	require.NoError(t, fresh.Release(ctx))
	require.False(t, mr.Exists(shared.RolloverLockKey(orgID)))
}

func TestLockerWithoutRedis(t *testing.T) {
	locker := closepkg.NewLocker(nil, 0)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, orgID)
	require.NoError(t, err)
	busy, err := locker.UnderMaintenance(ctx, orgID)
	require.NoError(t, err)
	require.False(t, busy)
	require.NoError(t, lease.Release(ctx))
}

func TestMachineTransitions(t *testing.T) {
	m := closepkg.NewMachine()
	require.Equal(t, closepkg.StatusReady, m.State(orgID).Status)

	first := [16]byte{1}
	require.NoError(t, m.Begin(orgID, first))
	require.True(t, m.Processing(orgID))
	require.ErrorIs(t, m.Begin(orgID, [16]byte{2}), closepkg.ErrRolloverInProgress)

	m.Fail(orgID, first, closepkg.ErrRolloverFailure)
	st := m.State(orgID)
	require.Equal(t, closepkg.StatusReady, st.Status)
	require.Equal(t, closepkg.ErrRolloverFailure.Error(), st.Cause)

	second := [16]byte{3}
	require.NoError(t, m.Begin(orgID, second))
	m.Abort(orgID, first)
	require.True(t, m.Processing(orgID))
	m.Complete(orgID, second)
	require.Equal(t, closepkg.StatusComplete, m.State(orgID).Status)
	require.NoError(t, m.Begin(orgID, [16]byte{4}))
}
