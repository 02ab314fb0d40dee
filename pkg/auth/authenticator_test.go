package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/auth/authtest"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveAuth(method, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[method+"/"+outcome]++
}

func (o *countingObserver) get(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[key]
}

type fixture struct {
	verifier *authtest.Verifier
	profiles *authtest.Profiles
	keys     *authtest.Keys
	recorder *authtest.Recorder
	observer *countingObserver
	authn    *auth.Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		verifier: authtest.NewVerifier().Add("admin-token", "u-admin").Add("listener-token", "u-listener").Add("ghost-token", "u-ghost").Add("suspended-token", "u-suspended"),
		profiles: authtest.NewProfiles(
			&auth.Profile{ID: "u-admin", Email: "admin@sodav.sn", Role: auth.RoleAdmin, IsActive: true},
			&auth.Profile{ID: "u-listener", Email: "listener@sodav.sn", Role: auth.RoleListener, IsActive: true},
			&auth.Profile{ID: "u-suspended", Email: "former@sodav.sn", Role: auth.RoleManager, IsActive: false},
		),
		keys:     authtest.NewKeys(),
		recorder: &authtest.Recorder{},
		observer: &countingObserver{},
	}
	f.authn = auth.NewAuthenticator(f.verifier, f.profiles, f.keys,
		auth.WithClock(func() time.Time { return fixedNow }),
		auth.WithRecorder(f.recorder),
		auth.WithObserver(f.observer),
	)
	return f
}

func requireKind(t *testing.T, err error, want auth.Kind) *auth.Error {
	t.Helper()
	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, want, authErr.Kind)
	return authErr
}

func TestParseBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Token abc", "", false},
		{"Bearer abc def", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := auth.ParseBearer(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveBearer(t *testing.T) {
	f := newFixture(t)

	p, err := f.authn.ResolveBearer(context.Background(), "Bearer admin-token")
	require.NoError(t, err)
	assert.Equal(t, "u-admin", p.UserID())
	assert.Equal(t, auth.RoleAdmin, p.Role())
	assert.Equal(t, auth.MethodBearer, p.Method)
	assert.Nil(t, p.Key)
	assert.Equal(t, 1, f.observer.get("bearer/success"))

	events := f.recorder.Snapshot()
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
	assert.Equal(t, "u-admin", events[0].UserID)
}

func TestResolveBearer_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		setup   func(f *fixture)
		kind    auth.Kind
		message string
	}{
		{
			name:    "missing header",
			header:  "",
			kind:    auth.KindUnauthenticated,
			message: "missing or invalid authorization header",
		},
		{
			name:    "wrong scheme",
			header:  "Basic admin-token",
			kind:    auth.KindUnauthenticated,
			message: "missing or invalid authorization header",
		},
		{
			name:    "provider rejects token",
			header:  "Bearer forged",
			kind:    auth.KindUnauthenticated,
			message: "invalid or expired token",
		},
		{
			name:   "provider unreachable",
			header: "Bearer admin-token",
			setup: func(f *fixture) {
				f.verifier.Err = errors.New("dial tcp: connection refused")
			},
			kind:    auth.KindUnauthenticated,
			message: "invalid or expired token",
		},
		{
			name:    "no profile",
			header:  "Bearer ghost-token",
			kind:    auth.KindNotFound,
			message: "user profile not found",
		},
		{
			name:    "inactive profile",
			header:  "Bearer suspended-token",
			kind:    auth.KindForbidden,
			message: "user account is disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			p, err := f.authn.ResolveBearer(context.Background(), tt.header)
			assert.Nil(t, p)
			authErr := requireKind(t, err, tt.kind)
			assert.Equal(t, tt.message, authErr.Message)

			events := f.recorder.Snapshot()
			require.Len(t, events, 1)
			assert.False(t, events[0].Success)
			assert.Equal(t, tt.kind, events[0].Kind)
		})
	}
}

func TestResolveBearer_ProfileStoreDown(t *testing.T) {
	f := newFixture(t)
	f.profiles.Err = errors.New("pq: connection reset")

	_, err := f.authn.ResolveBearer(context.Background(), "Bearer admin-token")
	requireKind(t, err, auth.KindUnauthenticated)
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	admin := &auth.Principal{Profile: &auth.Profile{ID: "u1", Role: auth.RoleAdmin}}
	operator := &auth.Principal{Profile: &auth.Profile{ID: "u2", Role: auth.RoleOperator}}

	assert.NoError(t, f.authn.Authorize(admin, auth.RoleAdmin))
	assert.NoError(t, f.authn.Authorize(operator, auth.RoleAdmin, auth.RoleManager, auth.RoleOperator))
	assert.NoError(t, f.authn.Authorize(operator))

	requireKind(t, f.authn.Authorize(operator, auth.RoleAdmin), auth.KindForbidden)
	requireKind(t, f.authn.Authorize(nil, auth.RoleAdmin), auth.KindUnauthenticated)
	requireKind(t, f.authn.Authorize(&auth.Principal{}), auth.KindUnauthenticated)
}

func TestAuthorize_KeyPrincipalUsesOwnerRole(t *testing.T) {
	f := newFixture(t)
	raw := f.keys.Issue(&auth.APIKey{ID: "k1", OwnerUserID: "u-listener", Active: true, Permissions: []auth.Permission{auth.PermissionAll}})

	p, err := f.authn.VerifyAPIKey(context.Background(), raw, nil, auth.RequireAll)
	require.NoError(t, err)

	assert.NoError(t, f.authn.Authorize(p, auth.RoleListener))
	requireKind(t, f.authn.Authorize(p, auth.RoleAdmin), auth.KindForbidden)
}

func TestVerifyAPIKey(t *testing.T) {
	f := newFixture(t)
	raw := f.keys.Issue(&auth.APIKey{
		ID:          "k-ingest",
		Name:        "ingest worker",
		OwnerUserID: "u-admin",
		Active:      true,
		Permissions: []auth.Permission{auth.PermissionDetectionsWrite, auth.PermissionSongsRead},
	})

	p, err := f.authn.VerifyAPIKey(context.Background(), raw, []auth.Permission{auth.PermissionDetectionsWrite}, auth.RequireAll)
	require.NoError(t, err)
	assert.Equal(t, auth.MethodAPIKey, p.Method)
	assert.Equal(t, "u-admin", p.UserID())
	require.NotNil(t, p.Key)
	assert.Equal(t, "k-ingest", p.Key.ID)

	assert.Eventually(t, func() bool {
		at, ok := f.keys.TouchedAt("k-ingest")
		return ok && at.Equal(fixedNow)
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.observer.get("api_key/success"))
}

func TestVerifyAPIKey_Rejections(t *testing.T) {
	past := fixedNow.Add(-time.Minute)
	future := fixedNow.Add(time.Hour)

	tests := []struct {
		name     string
		key      *auth.APIKey
		raw      string
		required []auth.Permission
		policy   auth.PermissionPolicy
		kind     auth.Kind
		message  string
	}{
		{
			name:    "empty key",
			raw:     "",
			kind:    auth.KindUnauthenticated,
			message: "missing API key",
		},
		{
			name:    "unknown key",
			raw:     "sodav_doesnotexist",
			kind:    auth.KindUnauthenticated,
			message: "invalid or disabled API key",
		},
		{
			name:    "disabled key",
			key:     &auth.APIKey{ID: "k", OwnerUserID: "u-admin", Active: false},
			kind:    auth.KindUnauthenticated,
			message: "invalid or disabled API key",
		},
		{
			name:    "expired key",
			key:     &auth.APIKey{ID: "k", OwnerUserID: "u-admin", Active: true, ExpiresAt: &past},
			kind:    auth.KindUnauthenticated,
			message: "API key expired",
		},
		{
			name:     "missing permission",
			key:      &auth.APIKey{ID: "k", OwnerUserID: "u-admin", Active: true, ExpiresAt: &future, Permissions: []auth.Permission{auth.PermissionSongsRead}},
			required: []auth.Permission{auth.PermissionDetectionsWrite},
			kind:     auth.KindForbidden,
			message:  "insufficient API key permissions",
		},
		{
			name:     "superset required under RequireAll",
			key:      &auth.APIKey{ID: "k", OwnerUserID: "u-admin", Active: true, Permissions: []auth.Permission{auth.PermissionSongsRead}},
			required: []auth.Permission{auth.PermissionSongsRead, auth.PermissionChannelsRead},
			policy:   auth.RequireAll,
			kind:     auth.KindForbidden,
			message:  "insufficient API key permissions",
		},
		{
			name:    "owner missing",
			key:     &auth.APIKey{ID: "k", OwnerUserID: "u-deleted", Active: true},
			kind:    auth.KindNotFound,
			message: "API key owner not found",
		},
		{
			name:    "owner inactive",
			key:     &auth.APIKey{ID: "k", OwnerUserID: "u-suspended", Active: true, Permissions: []auth.Permission{auth.PermissionAll}},
			kind:    auth.KindForbidden,
			message: "user account is disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			raw := tt.raw
			if tt.key != nil {
				raw = f.keys.Issue(tt.key)
			}

			p, err := f.authn.VerifyAPIKey(context.Background(), raw, tt.required, tt.policy)
			assert.Nil(t, p)
			authErr := requireKind(t, err, tt.kind)
			assert.Equal(t, tt.message, authErr.Message)
			assert.NotErrorIs(t, err, auth.ErrStoreUnavailable)

			_, touched := f.keys.TouchedAt("k")
			assert.False(t, touched)
		})
	}
}

func TestVerifyAPIKey_RequireAny(t *testing.T) {
	f := newFixture(t)
	raw := f.keys.Issue(&auth.APIKey{ID: "k", OwnerUserID: "u-admin", Active: true, Permissions: []auth.Permission{auth.PermissionSongsRead}})

	_, err := f.authn.VerifyAPIKey(context.Background(), raw,
		[]auth.Permission{auth.PermissionSongsRead, auth.PermissionChannelsRead}, auth.RequireAny)
	assert.NoError(t, err)
}

func TestVerifyAPIKey_ExpiryInFutureAccepted(t *testing.T) {
	f := newFixture(t)
	future := fixedNow.Add(time.Second)
	raw := f.keys.Issue(&auth.APIKey{ID: "k", OwnerUserID: "u-admin", Active: true, ExpiresAt: &future})

	_, err := f.authn.VerifyAPIKey(context.Background(), raw, nil, auth.RequireAll)
	assert.NoError(t, err)
}

func TestVerifyAPIKey_StoreUnavailableIsDistinguishable(t *testing.T) {
	f := newFixture(t)
	f.keys.Err = errors.New("dial tcp 10.0.0.5:5432: i/o timeout")

	_, err := f.authn.VerifyAPIKey(context.Background(), "sodav_anything", nil, auth.RequireAll)
	authErr := requireKind(t, err, auth.KindUnauthenticated)
	assert.Equal(t, "unable to verify API key", authErr.Message)
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, storage.ErrNotFound)

	_, err = newFixture(t).authn.VerifyAPIKey(context.Background(), "sodav_anything", nil, auth.RequireAll)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NotErrorIs(t, err, auth.ErrStoreUnavailable)
}

func TestVerifyAPIKey_TouchFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.keys.TouchErr = errors.New("database is read-only")
	raw := f.keys.Issue(&auth.APIKey{ID: "k", OwnerUserID: "u-admin", Active: true})

	p, err := f.authn.VerifyAPIKey(context.Background(), raw, nil, auth.RequireAll)
	require.NoError(t, err)
	assert.Equal(t, "u-admin", p.UserID())

	assert.Eventually(t, func() bool {
		_, ok := f.keys.TouchedAt("k")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestVerifyAPIKey_TouchSurvivesCanceledRequest(t *testing.T) {
	f := newFixture(t)
	raw := f.keys.Issue(&auth.APIKey{ID: "k", OwnerUserID: "u-admin", Active: true})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.authn.VerifyAPIKey(ctx, raw, nil, auth.RequireAll)
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		_, ok := f.keys.TouchedAt("k")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestAuthenticator_ConcurrentUse(t *testing.T) {
	f := newFixture(t)
	raw := f.keys.Issue(&auth.APIKey{ID: "k", OwnerUserID: "u-admin", Active: true, Permissions: []auth.Permission{auth.PermissionAll}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.authn.ResolveBearer(context.Background(), "Bearer listener-token")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.authn.VerifyAPIKey(context.Background(), raw, []auth.Permission{auth.PermissionKeysManage}, auth.RequireAll)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, f.observer.get("bearer/success"))
	assert.Equal(t, 50, f.observer.get("api_key/success"))
}
