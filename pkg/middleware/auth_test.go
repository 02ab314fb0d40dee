package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/auth/authtest"
	"github.com/sodav-monitor/sodav/pkg/contextkeys"
	"github.com/sodav-monitor/sodav/pkg/httputil"
)

type gate struct {
	authn  *auth.Authenticator
	keys   *authtest.Keys
	rawKey string
}

func newGate(t *testing.T) *gate {
	t.Helper()
	keys := authtest.NewKeys()
	g := &gate{keys: keys}
	g.rawKey = keys.Issue(&auth.APIKey{
		ID:          "k-probe",
		OwnerUserID: "u-operator",
		Permissions: []auth.Permission{auth.PermissionDetectionsWrite},
		Active:      true,
	})
	g.authn = auth.NewAuthenticator(
		authtest.NewVerifier().Add("admin-token", "u-admin").Add("operator-token", "u-operator").Add("orphan-token", "u-missing"),
		authtest.NewProfiles(
			&auth.Profile{ID: "u-admin", Role: auth.RoleAdmin, IsActive: true},
			&auth.Profile{ID: "u-operator", Role: auth.RoleOperator, IsActive: true},
		),
		keys,
	)
	return g
}

// echoPrincipal reports what the gate stored in the request context.
func echoPrincipal(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"user_id":   p.UserID(),
		"method":    string(p.Method),
		"ctx_user":  contextkeys.GetUserID(r.Context()),
		"client_ip": contextkeys.GetClientIP(r.Context()),
	})
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestRequireBearer(t *testing.T) {
	g := newGate(t)
	handler := RequireBearer(g.authn)(http.HandlerFunc(echoPrincipal))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing or invalid authorization header"},
		{"wrong scheme", "Basic YWRtaW4=", http.StatusUnauthorized, "missing or invalid authorization header"},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, "invalid or expired token"},
		{"no profile", "Bearer orphan-token", http.StatusNotFound, "user profile not found"},
		{"valid", "Bearer admin-token", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			req.RemoteAddr = "10.0.0.7:52100"
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorBody(t, rec))
				return
			}
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "u-admin", body["user_id"])
			assert.Equal(t, "u-admin", body["ctx_user"])
			assert.Equal(t, "bearer", body["method"])
			assert.Equal(t, "10.0.0.7", body["client_ip"])
		})
	}
}

func TestRequireRole(t *testing.T) {
	g := newGate(t)
	handler := RequireBearer(g.authn)(
		RequireRole(g.authn, auth.RoleAdmin, auth.RoleManager)(http.HandlerFunc(echoPrincipal)),
	)

	req := httptest.NewRequest(http.MethodDelete, "/api/channels/1", nil)
	req.Header.Set("Authorization", "Bearer operator-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "insufficient role", errorBody(t, rec))

	req.Header.Set("Authorization", "Bearer admin-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole_WithoutPrincipal(t *testing.T) {
	g := newGate(t)
	handler := RequireRole(g.authn, auth.RoleAdmin)(http.HandlerFunc(echoPrincipal))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication required", errorBody(t, rec))
}

func TestRequireAPIKey(t *testing.T) {
	g := newGate(t)

	tests := []struct {
		name       string
		key        string
		perms      []auth.Permission
		wantStatus int
		wantError  string
	}{
		{"missing key", "", []auth.Permission{auth.PermissionDetectionsWrite}, http.StatusUnauthorized, "missing API key"},
		{"unknown key", "sodav_unknown", []auth.Permission{auth.PermissionDetectionsWrite}, http.StatusUnauthorized, "invalid or disabled API key"},
		{"insufficient", g.rawKey, []auth.Permission{auth.PermissionKeysManage}, http.StatusForbidden, "insufficient API key permissions"},
		{"valid", g.rawKey, []auth.Permission{auth.PermissionDetectionsWrite}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAPIKey(g.authn, auth.RequireAll, tt.perms...)(http.HandlerFunc(echoPrincipal))
			req := httptest.NewRequest(http.MethodPost, "/api/ingest/detections", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorBody(t, rec))
				return
			}
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "u-operator", body["user_id"])
			assert.Equal(t, "api_key", body["method"])
		})
	}

	assert.Eventually(t, func() bool {
		_, ok := g.keys.TouchedAt("k-probe")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "41.82.1.1, 10.0.0.1"}, "10.0.0.2:1234", "41.82.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "41.82.1.2"}, "10.0.0.2:1234", "41.82.1.2"},
		{"remote addr", nil, "41.82.1.3:5555", "41.82.1.3"},
		{"remote without port", nil, "41.82.1.4", "41.82.1.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
