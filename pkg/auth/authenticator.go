package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

// IdentityVerifier resolves a bearer token with the identity provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// ProfileStore loads local account records. GetProfile returns
// storage.ErrNotFound when no record exists.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// KeyStore looks API keys up by hash. GetKeyByHash returns storage.ErrNotFound
// when no key matches.
type KeyStore interface {
	GetKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	TouchKey(ctx context.Context, id string, at time.Time) error
}

// Observer receives the outcome of every credential check.
type Observer interface {
	ObserveAuth(method, outcome string)
}

// Recorder persists authentication events.
type Recorder interface {
	RecordAuth(ctx context.Context, event *Event) error
}

// Event describes one authentication attempt.
type Event struct {
	Method     Method
	Success    bool
	Kind       Kind
	UserID     string
	KeyID      string
	Reason     string
	OccurredAt time.Time
}

// Outcome labels for Observer
const (
	OutcomeSuccess = "success"
)

const defaultTouchTimeout = 5 * time.Second

// Authenticator runs the access-control chain: bearer identity resolution,
// role authorization and API-key verification. It holds no per-request state
// and is safe for concurrent use.
type Authenticator struct {
	verifier     IdentityVerifier
	profiles     ProfileStore
	keys         KeyStore
	keygen       *KeyGenerator
	logger       *observability.Logger
	observer     Observer
	recorder     Recorder
	now          func() time.Time
	touchTimeout time.Duration
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger used for internal failures.
func WithLogger(logger *observability.Logger) Option {
	return func(a *Authenticator) { a.logger = logger }
}

// WithObserver reports outcomes to o, typically Prometheus metrics.
func WithObserver(o Observer) Option {
	return func(a *Authenticator) { a.observer = o }
}

// WithRecorder records every attempt to r. Recording is best-effort.
func WithRecorder(r Recorder) Option {
	return func(a *Authenticator) { a.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithTouchTimeout bounds the background last-used update.
func WithTouchTimeout(d time.Duration) Option {
	return func(a *Authenticator) { a.touchTimeout = d }
}

// NewAuthenticator creates an Authenticator over the given ports. keys may be
// nil when API keys are not accepted.
func NewAuthenticator(verifier IdentityVerifier, profiles ProfileStore, keys KeyStore, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		profiles:     profiles,
		keys:         keys,
		keygen:       NewKeyGenerator(),
		logger:       observability.NewLogger(observability.InfoLevel, nil),
		now:          time.Now,
		touchTimeout: defaultTouchTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ResolveBearer resolves an Authorization header value into a principal.
func (a *Authenticator) ResolveBearer(ctx context.Context, header string) (*Principal, error) {
	token, ok := ParseBearer(header)
	if !ok {
		return nil, a.reject(ctx, MethodBearer, Unauthenticated("missing or invalid authorization header", nil), "", "")
	}

	identity, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, a.reject(ctx, MethodBearer, Unauthenticated("invalid or expired token", err), "", "")
	}
	if identity == nil || identity.ID == "" {
		return nil, a.reject(ctx, MethodBearer, Unauthenticated("invalid or expired token", errors.New("identity provider returned no subject")), "", "")
	}

	profile, authErr := a.loadProfile(ctx, identity.ID, "user profile not found")
	if authErr != nil {
		return nil, a.reject(ctx, MethodBearer, authErr, identity.ID, "")
	}

	a.accept(ctx, MethodBearer, profile.ID, "")
	return &Principal{
		Profile:  profile,
		Identity: identity,
		Method:   MethodBearer,
	}, nil
}

// Authorize checks that the principal's role is one of roles. An empty role
// set only requires an authenticated principal.
func (a *Authenticator) Authorize(p *Principal, roles ...Role) error {
	if p == nil || p.Profile == nil {
		return Unauthenticated("authentication required", nil)
	}
	if len(roles) == 0 || p.HasRole(roles...) {
		return nil
	}
	return Forbidden("insufficient role", fmt.Errorf("role %q not in %v", p.Role(), roles))
}

// VerifyAPIKey checks a raw X-API-Key value and returns a principal carrying
// the key and its owner's profile. On success the key's last-used time is
// updated in the background; a failed update never fails the request.
func (a *Authenticator) VerifyAPIKey(ctx context.Context, raw string, required []Permission, policy PermissionPolicy) (*Principal, error) {
	if raw == "" {
		return nil, a.reject(ctx, MethodAPIKey, Unauthenticated("missing API key", nil), "", "")
	}
	if a.keys == nil {
		return nil, a.reject(ctx, MethodAPIKey, Unauthenticated("invalid or disabled API key", errors.New("no key store configured")), "", "")
	}

	key, err := a.keys.GetKeyByHash(ctx, a.keygen.Hash(raw))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, a.reject(ctx, MethodAPIKey, Unauthenticated("invalid or disabled API key", err), "", "")
	case err != nil:
		return nil, a.reject(ctx, MethodAPIKey, Unauthenticated("unable to verify API key", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)), "", "")
	}

	if !key.Active {
		return nil, a.reject(ctx, MethodAPIKey, Unauthenticated("invalid or disabled API key", nil), key.OwnerUserID, key.ID)
	}
	if key.Expired(a.now()) {
		return nil, a.reject(ctx, MethodAPIKey, Unauthenticated("API key expired", nil), key.OwnerUserID, key.ID)
	}
	if !policy.Allows(key.Permissions, required) {
		authErr := Forbidden("insufficient API key permissions", fmt.Errorf("policy %s requires %v, key has %v", policy, required, key.Permissions))
		return nil, a.reject(ctx, MethodAPIKey, authErr, key.OwnerUserID, key.ID)
	}

	owner, authErr := a.loadProfile(ctx, key.OwnerUserID, "API key owner not found")
	if authErr != nil {
		return nil, a.reject(ctx, MethodAPIKey, authErr, key.OwnerUserID, key.ID)
	}

	a.touch(ctx, key.ID)
	a.accept(ctx, MethodAPIKey, owner.ID, key.ID)

	return &Principal{
		Profile: owner,
		Key:     key,
		Method:  MethodAPIKey,
	}, nil
}

func (a *Authenticator) loadProfile(ctx context.Context, userID, missing string) (*Profile, *Error) {
	profile, err := a.profiles.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, NotFound(missing, err)
	case err != nil:
		return nil, Unauthenticated("unable to resolve user profile", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	case profile == nil:
		return nil, NotFound(missing, storage.ErrNotFound)
	case !profile.IsActive:
		return nil, Forbidden("user account is disabled", fmt.Errorf("profile %s is inactive", profile.ID))
	}
	return profile, nil
}

// touch updates last_used_at detached from the request context.
func (a *Authenticator) touch(ctx context.Context, keyID string) {
	at := a.now()
	bg := context.WithoutCancel(ctx)
	go func() {
		defer observability.RecoverPanic(a.logger, "api key touch")

		tctx, cancel := context.WithTimeout(bg, a.touchTimeout)
		defer cancel()
		if err := a.keys.TouchKey(tctx, keyID, at); err != nil {
			a.logger.WithError(err).WithField("key_id", keyID).Warn("failed to update API key last use")
		}
	}()
}

func (a *Authenticator) accept(ctx context.Context, method Method, userID, keyID string) {
	if a.observer != nil {
		a.observer.ObserveAuth(string(method), OutcomeSuccess)
	}
	a.record(ctx, &Event{
		Method:     method,
		Success:    true,
		UserID:     userID,
		KeyID:      keyID,
		OccurredAt: a.now(),
	})
}

func (a *Authenticator) reject(ctx context.Context, method Method, authErr *Error, userID, keyID string) error {
	if a.observer != nil {
		a.observer.ObserveAuth(string(method), authErr.Kind.String())
	}

	logger := a.logger.WithFields(map[string]interface{}{
		"method": string(method),
		"kind":   authErr.Kind.String(),
	})
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if errors.Is(authErr, ErrStoreUnavailable) {
		logger.WithError(authErr).Error("credential store unavailable")
	} else {
		logger.WithError(authErr).Debug("authentication rejected")
	}

	a.record(ctx, &Event{
		Method:     method,
		Kind:       authErr.Kind,
		UserID:     userID,
		KeyID:      keyID,
		Reason:     authErr.Message,
		OccurredAt: a.now(),
	})
	return authErr
}

func (a *Authenticator) record(ctx context.Context, event *Event) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordAuth(ctx, event); err != nil {
		a.logger.WithError(err).Warn("failed to record authentication event")
	}
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>"
// value. The scheme is matched case-insensitively.
func ParseBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
