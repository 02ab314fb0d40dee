// Package authtest provides in-memory implementations of the auth ports for
// tests.
package authtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

// ErrRejected is returned by Verifier for unknown tokens.
var ErrRejected = errors.New("token rejected")

// Verifier maps bearer tokens to identities.
type Verifier struct {
	Tokens map[string]*auth.Identity
	Err    error
}

// NewVerifier creates an empty Verifier.
func NewVerifier() *Verifier {
	return &Verifier{Tokens: map[string]*auth.Identity{}}
}

// Add registers token for userID.
func (v *Verifier) Add(token, userID string) *Verifier {
	v.Tokens[token] = &auth.Identity{ID: userID}
	return v
}

func (v *Verifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	if v.Err != nil {
		return nil, v.Err
	}
	identity, ok := v.Tokens[token]
	if !ok {
		return nil, ErrRejected
	}
	return identity, nil
}

// Profiles is a map-backed profile store.
type Profiles struct {
	mu       sync.RWMutex
	profiles map[string]*auth.Profile
	Err      error
}

// NewProfiles creates a store holding the given profiles.
func NewProfiles(profiles ...*auth.Profile) *Profiles {
	p := &Profiles{profiles: map[string]*auth.Profile{}}
	for _, profile := range profiles {
		p.Put(profile)
	}
	return p
}

// Put adds or replaces a profile.
func (p *Profiles) Put(profile *auth.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.ID] = profile
}

func (p *Profiles) GetProfile(_ context.Context, userID string) (*auth.Profile, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	profile, ok := p.profiles[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *profile
	return &copied, nil
}

// Keys is a hash-indexed key store that records touches.
type Keys struct {
	mu       sync.Mutex
	keys     map[string]*auth.APIKey
	touched  map[string]time.Time
	Err      error
	TouchErr error
}

// NewKeys creates an empty key store.
func NewKeys() *Keys {
	return &Keys{keys: map[string]*auth.APIKey{}, touched: map[string]time.Time{}}
}

// Issue generates a raw key for key, stores it and returns the raw value.
func (k *Keys) Issue(key *auth.APIKey) string {
	raw, hash, prefix, err := auth.NewKeyGenerator().Generate()
	if err != nil {
		panic(err)
	}
	key.KeyHash = hash
	key.KeyPrefix = prefix
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[hash] = key
	return raw
}

func (k *Keys) GetKeyByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	if k.Err != nil {
		return nil, k.Err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	key, ok := k.keys[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *key
	return &copied, nil
}

func (k *Keys) TouchKey(_ context.Context, id string, at time.Time) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.touched[id] = at
	return k.TouchErr
}

// CreateKey stores key under its hash, assigning an ID when missing.
func (k *Keys) CreateKey(_ context.Context, key *auth.APIKey) error {
	if k.Err != nil {
		return k.Err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.keys[key.KeyHash]; exists {
		return storage.ErrConflict
	}
	if key.ID == "" {
		key.ID = fmt.Sprintf("key-%d", len(k.keys)+1)
	}
	key.CreatedAt = time.Now()
	copied := *key
	k.keys[key.KeyHash] = &copied
	return nil
}

// ListKeys returns keys ordered by ID, restricted to ownerID when non-empty.
func (k *Keys) ListKeys(_ context.Context, ownerID string) ([]*auth.APIKey, error) {
	if k.Err != nil {
		return nil, k.Err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []*auth.APIKey
	for _, key := range k.keys {
		if ownerID == "" || key.OwnerUserID == ownerID {
			copied := *key
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DisableKey marks the key with id inactive.
func (k *Keys) DisableKey(_ context.Context, id string) error {
	if k.Err != nil {
		return k.Err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range k.keys {
		if key.ID == id {
			key.Active = false
			return nil
		}
	}
	return storage.ErrNotFound
}

// TouchedAt returns when id was last touched.
func (k *Keys) TouchedAt(id string) (time.Time, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	at, ok := k.touched[id]
	return at, ok
}

// Recorder collects authentication events.
type Recorder struct {
	mu     sync.Mutex
	Events []auth.Event
}

func (r *Recorder) RecordAuth(_ context.Context, event *auth.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, *event)
	return nil
}

// Snapshot returns a copy of the recorded events.
func (r *Recorder) Snapshot() []auth.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.Event(nil), r.Events...)
}
