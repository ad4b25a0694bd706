package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/aquafarm-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 0, 0)

	token, exp, err := tm.Generate("user-1", "acct-1", []string{"worker"}, domain.TokenKindAccess)
	require.NoError(t, err)

	claims, err := tm.Parse(token, domain.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, []string{"worker"}, claims.Roles)
	assert.Equal(t, domain.TokenKindAccess, claims.Kind)
	assert.Equal(t, exp.Unix(), claims.ExpiresAt.Unix())
}

func TestAccessTokenDefaultTTL(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tm := NewTokenManager("test-secret", 0, 0).WithClock(func() time.Time { return start })

	_, exp, err := tm.Generate("user-1", "acct-1", nil, domain.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, start.Add(domain.AccessTokenTTL).Unix(), exp.Unix())

	_, exp, err = tm.Generate("user-1", "acct-1", nil, domain.TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, start.Add(domain.RefreshTokenTTL).Unix(), exp.Unix())
}

func TestRefreshTokenExpiresAfterWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tm := NewTokenManager("test-secret", 0, 0).WithClock(func() time.Time { return now })

	token, _, err := tm.Generate("user-1", "acct-1", nil, domain.TokenKindRefresh)
	require.NoError(t, err)

	// 91 days later the 90-day token must be rejected.
	now = now.Add(91 * 24 * time.Hour)
	_, err = tm.Parse(token, domain.TokenKindRefresh)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParseWrongKind(t *testing.T) {
	tm := NewTokenManager("test-secret", 0, 0)

	access, _, err := tm.Generate("user-1", "acct-1", nil, domain.TokenKindAccess)
	require.NoError(t, err)

	_, err = tm.Parse(access, domain.TokenKindRefresh)
	assert.ErrorIs(t, err, ErrWrongKind)

	// No expectation means any kind is accepted.
	_, err = tm.Parse(access, "")
	assert.NoError(t, err)
}

func TestParseBadSignature(t *testing.T) {
	tm := NewTokenManager("test-secret", 0, 0)
	other := NewTokenManager("other-secret", 0, 0)

	token, _, err := other.Generate("user-1", "acct-1", nil, domain.TokenKindAccess)
	require.NoError(t, err)

	_, err = tm.Parse(token, domain.TokenKindAccess)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestParseMalformed(t *testing.T) {
	tm := NewTokenManager("test-secret", 0, 0)

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := tm.Parse(raw, domain.TokenKindAccess)
		assert.ErrorIs(t, err, ErrMalformedToken, "input %q", raw)
	}
}

func TestExpiredBeatsSignatureCheckOrderIrrelevant(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tm := NewTokenManager("test-secret", 0, 0).WithClock(func() time.Time { return now })

	token, _, err := tm.GenerateWithTTL("user-1", "acct-1", nil, domain.TokenKindAccess, time.Hour)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = tm.Parse(token, domain.TokenKindAccess)
	assert.ErrorIs(t, err, ErrExpired)
}
