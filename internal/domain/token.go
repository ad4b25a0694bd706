package domain

import "time"

// TokenKind discriminates access tokens from refresh tokens. A token is only
// valid for the operation class matching its kind.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "ACCESS"
	TokenKindRefresh TokenKind = "REFRESH"
)

// Default validity windows per kind.
const (
	AccessTokenTTL  = 7 * 24 * time.Hour
	RefreshTokenTTL = 90 * 24 * time.Hour
)

// TokenPair bundles the credentials returned by a password login.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
