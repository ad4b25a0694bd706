package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/aquafarm-service/internal/domain"
)

// TokenManager issues and validates signed access and refresh tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager builds a codec with per-kind default TTLs.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = domain.AccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = domain.RefreshTokenTTL
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the issuance/validation clock. Intended for tests.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

// Claims describes the signed token payload.
type Claims struct {
	UserID    string           `json:"uid"`
	AccountID string           `json:"acc"`
	Roles     []string         `json:"roles,omitempty"`
	Kind      domain.TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// Generate signs a token of the given kind using the kind's default TTL.
func (tm *TokenManager) Generate(userID, accountID string, roles []string, kind domain.TokenKind) (string, time.Time, error) {
	return tm.GenerateWithTTL(userID, accountID, roles, kind, tm.defaultTTL(kind))
}

// GenerateWithTTL signs a token with an explicit validity window. Expiry is
// an absolute instant at integer-second granularity.
func (tm *TokenManager) GenerateWithTTL(userID, accountID string, roles []string, kind domain.TokenKind, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("userID is required")
	}
	if kind != domain.TokenKindAccess && kind != domain.TokenKindRefresh {
		return "", time.Time{}, ErrWrongKind
	}
	if ttl <= 0 {
		ttl = tm.defaultTTL(kind)
	}

	now := tm.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	claims := &Claims{
		UserID:    userID,
		AccountID: accountID,
		Roles:     roles,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates signature and expiry and returns the claims. When expect is
// non-empty the payload kind must match, otherwise ErrWrongKind. Expiry is
// enforced twice: once by the JWT library and once by an explicit clock
// comparison here, because the embedded check alone has silently accepted
// tokens before.
func (tm *TokenManager) Parse(tokenStr string, expect domain.TokenKind) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMalformedToken
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrBadSignature
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		switch {
		case errors.Is(err, ErrBadSignature), errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformedToken
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedToken
	}
	if claims.UserID == "" || claims.ExpiresAt == nil {
		return nil, ErrMalformedToken
	}
	if tm.now().Unix() > claims.ExpiresAt.Unix() {
		return nil, ErrExpired
	}
	if expect != "" && claims.Kind != expect {
		return nil, ErrWrongKind
	}
	return claims, nil
}

func (tm *TokenManager) defaultTTL(kind domain.TokenKind) time.Duration {
	if kind == domain.TokenKindRefresh {
		return tm.refreshTTL
	}
	return tm.accessTTL
}
