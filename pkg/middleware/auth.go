package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/contextkeys"
	"github.com/sodav-monitor/sodav/pkg/httputil"
)

// APIKeyHeader carries machine credentials.
const APIKeyHeader = "X-API-Key"

// RequireBearer resolves the Authorization header into a principal and
// stores it in the request context.
func RequireBearer(a *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := contextkeys.WithClientIP(r.Context(), getClientIP(r))
			principal, err := a.ResolveBearer(ctx, r.Header.Get("Authorization"))
			if err != nil {
				httputil.WriteAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(ctx, principal)))
		})
	}
}

// RequireRole rejects requests whose principal holds none of roles. It must
// run after RequireBearer or RequireAPIKey.
func RequireRole(a *auth.Authenticator, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := a.Authorize(PrincipalFrom(r.Context()), roles...); err != nil {
				httputil.WriteAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAPIKey verifies the X-API-Key header against perms under policy.
func RequireAPIKey(a *auth.Authenticator, policy auth.PermissionPolicy, perms ...auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := contextkeys.WithClientIP(r.Context(), getClientIP(r))
			principal, err := a.VerifyAPIKey(ctx, strings.TrimSpace(r.Header.Get(APIKeyHeader)), perms, policy)
			if err != nil {
				httputil.WriteAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(ctx, principal)))
		})
	}
}

// PrincipalFrom returns the principal stored by the gating middleware, or nil.
func PrincipalFrom(ctx context.Context) *auth.Principal {
	principal, _ := ctx.Value(contextkeys.PrincipalKey).(*auth.Principal)
	return principal
}

func withPrincipal(ctx context.Context, principal *auth.Principal) context.Context {
	ctx = contextkeys.WithPrincipal(ctx, principal)
	return contextkeys.WithUserID(ctx, principal.UserID())
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote host.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
