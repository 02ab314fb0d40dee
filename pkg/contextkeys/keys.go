// Package contextkeys defines every context key used across the service.
//
// Keys live here so packages can share request-scoped values without
// importing each other:
//
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	principal, _ := ctx.Value(contextkeys.PrincipalKey).(*auth.Principal)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey holds the *auth.Principal resolved for the request.
	// Set by: middleware.RequireBearer, middleware.RequireAPIKey
	PrincipalKey Key = "principal"

	// RequestIDKey holds the request ID string.
	// Set by: httputil.RequestIDMiddleware
	RequestIDKey Key = "request_id"

	// UserIDKey holds the authenticated profile ID string.
	// Set by: middleware.RequireBearer, middleware.RequireAPIKey
	UserIDKey Key = "user_id"

	// LoggerKey holds the request-scoped *observability.Logger.
	// Set by: httputil.RequestIDMiddleware
	LoggerKey Key = "logger"

	// ClientIPKey holds the caller address used by audit records.
	// Set by: middleware.RequireBearer, middleware.RequireAPIKey
	ClientIPKey Key = "client_ip"
)

// WithPrincipal stores the resolved principal
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithRequestID stores the request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID stores the user ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger stores the logger
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithClientIP stores the caller address
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetRequestID retrieves the request ID, or ""
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves the user ID, or ""
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetClientIP retrieves the caller address, or ""
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}
