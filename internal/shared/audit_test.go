package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditLogValidate(t *testing.T) {
	log := AuditLog{Action: "gl.rollover", Entity: "gl_period", EntityID: "2024-03"}
	require.NoError(t, log.Validate())

	missing := log
	missing.EntityID = ""
	require.ErrorIs(t, missing.Validate(), ErrInvalidAuditLog)
	require.ErrorContains(t, missing.Validate(), "entity id")

	missing = log
	missing.Action = ""
	require.ErrorContains(t, missing.Validate(), "action")
}

func TestAuditLoggerRequiresPool(t *testing.T) {
	var l *AuditLogger
	require.Error(t, l.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
	require.Error(t, NewAuditLogger(nil).Record(context.Background(), AuditLog{}))
}
