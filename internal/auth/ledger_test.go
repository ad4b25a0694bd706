package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/aquafarm-service/internal/domain"
)

func testIdentity(id string) *domain.Identity {
	return domain.NewIdentity(id, "acct-1", "Test User", id+"@example.com", "", []string{"worker"})
}

func mintRefresh(t *testing.T, tm *TokenManager, userID string) string {
	t.Helper()
	token, _, err := tm.Generate(userID, "acct-1", nil, domain.TokenKindRefresh)
	require.NoError(t, err)
	return token
}

func TestLedgerAddKeepsMostRecentFive(t *testing.T) {
	tm := NewTokenManager("test-secret", 0, 0)
	ledger := NewLedger(tm)
	identity := testIdentity("user-1")

	tokens := make([]string, 6)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("token-%d", i+1)
		ledger.Add(identity, tokens[i])
	}

	assert.Len(t, identity.RefreshTokens, domain.MaxRefreshTokens)
	assert.Equal(t, tokens[1:], identity.RefreshTokens)
}

func TestLedgerValidate(t *testing.T) {
	tm := NewTokenManager("test-secret", 0, 0)
	ledger := NewLedger(tm)
	identity := testIdentity("user-1")

	refresh := mintRefresh(t, tm, "user-1")
	ledger.Add(identity, refresh)

	assert.True(t, ledger.Validate(identity, refresh))

	// Valid token for another subject is rejected.
	foreign := mintRefresh(t, tm, "user-2")
	assert.False(t, ledger.Validate(identity, foreign))

	// A token absent from the list is rejected even though it decodes.
	orphan := mintRefresh(t, tm, "user-1")
	assert.False(t, ledger.Validate(identity, orphan))

	// Access tokens never validate as refresh tokens.
	access, _, err := tm.Generate("user-1", "acct-1", nil, domain.TokenKindAccess)
	require.NoError(t, err)
	ledger.Add(identity, access)
	assert.False(t, ledger.Validate(identity, access))

	assert.False(t, ledger.Validate(identity, "garbage"))
}

func TestLedgerCleanupPrunesExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tm := NewTokenManager("test-secret", 0, 0).WithClock(func() time.Time { return now })
	ledger := NewLedger(tm)
	identity := testIdentity("user-1")

	shortLived, _, err := tm.GenerateWithTTL("user-1", "acct-1", nil, domain.TokenKindRefresh, time.Hour)
	require.NoError(t, err)
	longLived := mintRefresh(t, tm, "user-1")
	ledger.Add(identity, shortLived)
	ledger.Add(identity, longLived)
	ledger.Add(identity, "never-valid")

	now = now.Add(2 * time.Hour)
	hasValid, newToken, _, err := ledger.Cleanup(identity, false)
	require.NoError(t, err)
	assert.True(t, hasValid)
	assert.Empty(t, newToken)
	assert.Equal(t, []string{longLived}, identity.RefreshTokens)
}

func TestLedgerCleanupAllExpiredForcesRelogin(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tm := NewTokenManager("test-secret", 0, 0).WithClock(func() time.Time { return now })
	ledger := NewLedger(tm)
	identity := testIdentity("user-1")

	expired, _, err := tm.GenerateWithTTL("user-1", "acct-1", nil, domain.TokenKindRefresh, time.Minute)
	require.NoError(t, err)
	ledger.Add(identity, expired)

	now = now.Add(time.Hour)
	hasValid, _, _, err := ledger.Cleanup(identity, false)
	require.NoError(t, err)
	assert.False(t, hasValid)
	assert.Empty(t, identity.RefreshTokens)
}

func TestLedgerCleanupMintNewStaysBounded(t *testing.T) {
	tm := NewTokenManager("test-secret", 0, 0)
	ledger := NewLedger(tm)
	identity := testIdentity("user-1")

	existing := make([]string, domain.MaxRefreshTokens)
	for i := range existing {
		existing[i] = mintRefresh(t, tm, "user-1")
		ledger.Add(identity, existing[i])
	}

	hasValid, newToken, exp, err := ledger.Cleanup(identity, true)
	require.NoError(t, err)
	assert.True(t, hasValid)
	assert.NotEmpty(t, newToken)
	assert.False(t, exp.IsZero())

	assert.Len(t, identity.RefreshTokens, domain.MaxRefreshTokens)
	assert.Equal(t, newToken, identity.RefreshTokens[len(identity.RefreshTokens)-1])
	assert.NotContains(t, identity.RefreshTokens, existing[0])
}
