package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseActor(t *testing.T) {
	actor := ParseActor(" 42 ", "finance.gl.view, finance.period.close,,")
	require.Equal(t, int64(42), actor.ID)
	require.Equal(t, []string{PermFinanceGLView, PermFinancePeriodClose}, actor.Permissions)
	require.True(t, actor.Elevated())
	require.False(t, actor.Can(PermFinanceGLEdit))

	require.Equal(t, Actor{}, ParseActor("abc", PermFinanceGLView))
	require.Equal(t, Actor{}, ParseActor("-1", ""))
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	require.False(t, ok)

	ctx := ContextWithActor(context.Background(), Actor{ID: 7})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, int64(7), actor.ID)
	require.False(t, actor.Elevated())

	_, ok = ActorFromContext(ContextWithActor(context.Background(), Actor{}))
	require.False(t, ok)
}

func TestLockKeys(t *testing.T) {
	require.Equal(t, "gl:org:9:rollover:lock", RolloverLockKey(9))
	require.Equal(t, "gl:org:9:maintenance", MaintenanceKey(9))
}
