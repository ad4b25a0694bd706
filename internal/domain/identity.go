package domain

import "time"

// MaxRefreshTokens bounds the number of concurrent sessions per identity.
// When the list overflows, the oldest token is evicted first.
const MaxRefreshTokens = 5

// DefaultTimezone is applied to every identity's settings on creation.
const DefaultTimezone = "Asia/Dhaka"

// IdentityStatus represents lifecycle states for an identity.
type IdentityStatus string

const (
	IdentityStatusActive    IdentityStatus = "ACTIVE"
	IdentityStatusSuspended IdentityStatus = "SUSPENDED"
)

// Subscription describes the plan attached to an account.
type Subscription struct {
	Plan      string    `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Identity is the domain model for an authenticated principal. Every identity
// belongs to exactly one account; the user ID is globally unique.
type Identity struct {
	ID            string         `json:"id"`
	AccountID     string         `json:"account_id"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	PasswordHash  string         `json:"-"`
	Roles         []string       `json:"roles"`
	RefreshTokens []string       `json:"-"`
	Settings      map[string]any `json:"settings"`
	Subscription  Subscription   `json:"subscription"`
	Status        IdentityStatus `json:"status"`
	LastActivity  time.Time      `json:"last_activity"`
	Version       int64          `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	// AdditionalFields holds profile attributes outside the typed core.
	// Accessors fall back to this map; nothing is intercepted implicitly.
	AdditionalFields map[string]any `json:"additional_fields,omitempty"`
}

// NewIdentity builds an identity with required defaults applied.
func NewIdentity(id, accountID, name, email, passwordHash string, roles []string) *Identity {
	now := time.Now().UTC()
	return &Identity{
		ID:           id,
		AccountID:    accountID,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        roles,
		Settings:     map[string]any{"timezone": DefaultTimezone},
		Status:       IdentityStatusActive,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// PrimaryRole returns the first role, or the empty string when none assigned.
func (i *Identity) PrimaryRole() Role {
	if len(i.Roles) == 0 {
		return ""
	}
	return Role(i.Roles[0])
}

// HasRole reports whether the identity carries the given role.
func (i *Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if Role(r) == role {
			return true
		}
	}
	return false
}

// Field returns a typed profile field when present, falling back to the
// additional-fields side map.
func (i *Identity) Field(name string) (any, bool) {
	switch name {
	case "id":
		return i.ID, true
	case "account_id":
		return i.AccountID, true
	case "name":
		return i.Name, true
	case "email":
		return i.Email, true
	}
	if i.AdditionalFields == nil {
		return nil, false
	}
	v, ok := i.AdditionalFields[name]
	return v, ok
}

// SetField stores a non-core profile attribute in the side map.
func (i *Identity) SetField(name string, value any) {
	if i.AdditionalFields == nil {
		i.AdditionalFields = make(map[string]any)
	}
	i.AdditionalFields[name] = value
}

// Touch updates the last-activity timestamp.
func (i *Identity) Touch(now time.Time) {
	i.LastActivity = now.UTC()
}

// Clone returns a deep copy so callers can do store I/O without holding
// cache locks over a shared pointer.
func (i *Identity) Clone() *Identity {
	cp := *i
	cp.Roles = append([]string(nil), i.Roles...)
	cp.RefreshTokens = append([]string(nil), i.RefreshTokens...)
	if i.Settings != nil {
		cp.Settings = make(map[string]any, len(i.Settings))
		for k, v := range i.Settings {
			cp.Settings[k] = v
		}
	}
	if i.AdditionalFields != nil {
		cp.AdditionalFields = make(map[string]any, len(i.AdditionalFields))
		for k, v := range i.AdditionalFields {
			cp.AdditionalFields[k] = v
		}
	}
	return &cp
}
