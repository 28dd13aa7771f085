package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditLogValidate(t *testing.T) {
	ok := AuditLog{Action: "ROLE_CREATE", Entity: "roles", EntityID: "3"}
	require.NoError(t, ok.validate())

	for name, entry := range map[string]AuditLog{
		"no action":    {Entity: "roles", EntityID: "3"},
		"blank entity": {Action: "ROLE_CREATE", Entity: "  ", EntityID: "3"},
		"no entity id": {Action: "ROLE_CREATE", Entity: "roles"},
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, entry.validate(), ErrInvalidAudit)
		})
	}
}

func TestAuditLoggerWithoutPool(t *testing.T) {
	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "A", Entity: "e", EntityID: "1"}))
	require.Error(t, NewAuditLogger(nil).Record(context.Background(), AuditLog{Action: "A", Entity: "e", EntityID: "1"}))
}

func TestCoreScopes(t *testing.T) {
	scopes := CoreScopes()
	require.Contains(t, scopes, PermRolesAssign)
	require.Contains(t, scopes, PermCalendarEdit)
	seen := map[string]bool{}
	for _, s := range scopes {
		require.False(t, seen[s], "duplicate scope %s", s)
		seen[s] = true
	}
}
