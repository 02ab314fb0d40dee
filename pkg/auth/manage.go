package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// KeyAdminStore is the write side of key storage.
type KeyAdminStore interface {
	CreateKey(ctx context.Context, key *APIKey) error
	ListKeys(ctx context.Context, ownerID string) ([]*APIKey, error)
	DisableKey(ctx context.Context, id string) error
}

// Valid reports whether p is a known permission or the wildcard.
func (p Permission) Valid() bool {
	switch p {
	case PermissionDetectionsWrite, PermissionSongsRead, PermissionChannelsRead,
		PermissionReportsRead, PermissionKeysManage, PermissionAll:
		return true
	}
	return false
}

// IssueRequest describes a key to issue.
type IssueRequest struct {
	Name        string       `json:"name"`
	OwnerUserID string       `json:"owner_user_id"`
	Permissions []Permission `json:"permissions"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}

// KeyManager issues, lists and disables API keys.
type KeyManager struct {
	store KeyAdminStore
	gen   *KeyGenerator
	now   func() time.Time
}

// NewKeyManager creates a KeyManager over store.
func NewKeyManager(store KeyAdminStore) *KeyManager {
	return &KeyManager{store: store, gen: NewKeyGenerator(), now: time.Now}
}

// Issue validates req, generates a key and stores its hash. The raw key is
// returned once and cannot be recovered later.
func (m *KeyManager) Issue(ctx context.Context, req IssueRequest) (string, *APIKey, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", nil, Validation("key name is required", nil)
	}
	if req.OwnerUserID == "" {
		return "", nil, Validation("key owner is required", nil)
	}
	if len(req.Permissions) == 0 {
		return "", nil, Validation("at least one permission is required", nil)
	}
	for _, p := range req.Permissions {
		if !p.Valid() {
			return "", nil, Validation(fmt.Sprintf("unknown permission %q", p), nil)
		}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(m.now()) {
		return "", nil, Validation("expiry must be in the future", nil)
	}

	raw, hash, prefix, err := m.gen.Generate()
	if err != nil {
		return "", nil, err
	}
	key := &APIKey{
		Name:        name,
		OwnerUserID: req.OwnerUserID,
		KeyHash:     hash,
		KeyPrefix:   prefix,
		Permissions: req.Permissions,
		Active:      true,
		ExpiresAt:   req.ExpiresAt,
	}
	if err := m.store.CreateKey(ctx, key); err != nil {
		return "", nil, err
	}
	return raw, key, nil
}

// List returns keys, all of them when ownerID is empty.
func (m *KeyManager) List(ctx context.Context, ownerID string) ([]*APIKey, error) {
	return m.store.ListKeys(ctx, ownerID)
}

// Disable deactivates a key. Disabled keys fail verification immediately.
func (m *KeyManager) Disable(ctx context.Context, id string) error {
	return m.store.DisableKey(ctx, id)
}
