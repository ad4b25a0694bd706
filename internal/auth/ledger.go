package auth

import (
	"time"

	"github.com/spec-kit/aquafarm-service/internal/domain"
)

// Ledger manages the bounded list of valid refresh tokens carried by an
// identity. It mutates the identity in place; persisting the change is the
// caller's responsibility.
type Ledger struct {
	tokens *TokenManager
}

// NewLedger builds a ledger on top of the token codec.
func NewLedger(tokens *TokenManager) *Ledger {
	return &Ledger{tokens: tokens}
}

// Add appends a refresh token, evicting from the front so that only the most
// recent domain.MaxRefreshTokens entries remain.
func (l *Ledger) Add(identity *domain.Identity, token string) {
	identity.RefreshTokens = append(identity.RefreshTokens, token)
	if n := len(identity.RefreshTokens); n > domain.MaxRefreshTokens {
		identity.RefreshTokens = identity.RefreshTokens[n-domain.MaxRefreshTokens:]
	}
}

// Validate reports whether token is a live refresh token belonging to the
// identity. Decode failures and absence from the list are both false; this
// never returns an error.
func (l *Ledger) Validate(identity *domain.Identity, token string) bool {
	claims, err := l.tokens.Parse(token, domain.TokenKindRefresh)
	if err != nil {
		return false
	}
	if claims.UserID != identity.ID {
		return false
	}
	for _, t := range identity.RefreshTokens {
		if t == token {
			return true
		}
	}
	return false
}

// Cleanup decodes every stored refresh token and keeps only the survivors.
// hasValid is false when none survive, signalling a forced re-login. When
// mintNew is set a fresh refresh token is minted and appended (still bounded);
// this is the only path besides password login that issues one.
func (l *Ledger) Cleanup(identity *domain.Identity, mintNew bool) (hasValid bool, newToken string, expiresAt time.Time, err error) {
	survivors := identity.RefreshTokens[:0]
	for _, t := range identity.RefreshTokens {
		if _, perr := l.tokens.Parse(t, domain.TokenKindRefresh); perr == nil {
			survivors = append(survivors, t)
		}
	}
	identity.RefreshTokens = survivors
	hasValid = len(survivors) > 0

	if mintNew {
		newToken, expiresAt, err = l.tokens.Generate(identity.ID, identity.AccountID, identity.Roles, domain.TokenKindRefresh)
		if err != nil {
			return hasValid, "", time.Time{}, err
		}
		l.Add(identity, newToken)
	}
	return hasValid, newToken, expiresAt, nil
}
