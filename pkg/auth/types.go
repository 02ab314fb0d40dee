package auth

import (
	"slices"
	"time"
)

// Role is the access level carried by a user profile.
type Role string

const (
	RoleAdmin    Role = "admin"    // Full access, including key management
	RoleManager  Role = "manager"  // Manages channels, songs and reports
	RoleOperator Role = "operator" // Corrects detections
	RoleListener Role = "listener" // Read-only access
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleOperator, RoleListener:
		return true
	}
	return false
}

// Profile is the local account record attached to an identity.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is what the identity provider tells us about a bearer token.
type Identity struct {
	ID     string         `json:"id"`
	Email  string         `json:"email,omitempty"`
	Claims map[string]any `json:"-"`
}

// Permission is a capability granted to an API key.
type Permission string

const (
	PermissionDetectionsWrite Permission = "detections:write"
	PermissionSongsRead       Permission = "songs:read"
	PermissionChannelsRead    Permission = "channels:read"
	PermissionReportsRead     Permission = "reports:read"
	PermissionKeysManage      Permission = "keys:manage"
	PermissionAll             Permission = "*"
)

// APIKey is a stored machine credential. Only the SHA-256 hash of the raw key
// is ever persisted.
type APIKey struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	OwnerUserID string       `json:"owner_user_id"`
	KeyHash     string       `json:"-"`
	KeyPrefix   string       `json:"key_prefix"`
	Permissions []Permission `json:"permissions"`
	Active      bool         `json:"active"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time   `json:"last_used_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Expired reports whether the key has an expiry at or before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Method records how a principal was authenticated.
type Method string

const (
	MethodBearer Method = "bearer"
	MethodAPIKey Method = "api_key"
)

// Principal is the identity resolved for a single request. It is never
// persisted.
type Principal struct {
	Profile  *Profile
	Identity *Identity
	Key      *APIKey
	Method   Method
}

// UserID returns the profile ID, or "" for a nil principal.
func (p *Principal) UserID() string {
	if p == nil || p.Profile == nil {
		return ""
	}
	return p.Profile.ID
}

// Role returns the profile role. Key-authenticated principals carry their
// owner's role.
func (p *Principal) Role() Role {
	if p == nil || p.Profile == nil {
		return ""
	}
	return p.Profile.Role
}

// HasRole reports whether the principal's role is one of roles.
func (p *Principal) HasRole(roles ...Role) bool {
	role := p.Role()
	return role != "" && slices.Contains(roles, role)
}
