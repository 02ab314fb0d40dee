// Package middleware gates HTTP handlers on the access-control chain and
// throttles callers.
//
// Gates compose with gorilla/mux subrouters:
//
//	admin := router.PathPrefix("/api/keys").Subrouter()
//	admin.Use(middleware.RequireBearer(authn), middleware.RequireRole(authn, auth.RoleAdmin))
//
//	ingest := router.PathPrefix("/api/ingest").Subrouter()
//	ingest.Use(middleware.RequireAPIKey(authn, auth.RequireAll, auth.PermissionDetectionsWrite))
//
// Handlers read the caller with PrincipalFrom(r.Context()).
//
// # Rate Limiting
//
// RateLimitMiddleware keys buckets by API key, user or client IP, with one
// quota per class:
//
//	Anonymous: 100 req/min, 10 burst
//	Per-user:  1000 req/min, 50 burst
//	Per-key:   5000 req/min, 100 burst
//
// RateLimiter is an in-process token bucket; DistributedRateLimiter is a
// Redis fixed window shared across replicas. Limiter errors let the request
// through.
package middleware
