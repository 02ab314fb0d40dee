// Package auth implements the access-control chain for the SODAV Monitor API.
//
// # Overview
//
// Every protected request walks the same small state machine:
//
//	UNRESOLVED -> IDENTITY_RESOLVED -> AUTHORIZED -> HANDLED
//
// and may be rejected at any stage. Identity comes either from a bearer
// token checked with the identity provider, or from an API key looked up by
// its SHA-256 hash. The Authenticator holds no per-request state.
//
// # Bearer tokens
//
//	authn := auth.NewAuthenticator(verifier, profiles, keys,
//		auth.WithLogger(logger),
//		auth.WithObserver(metrics),
//	)
//	principal, err := authn.ResolveBearer(ctx, r.Header.Get("Authorization"))
//	if err != nil {
//		httputil.WriteAuthError(w, err)
//		return
//	}
//	if err := authn.Authorize(principal, auth.RoleAdmin, auth.RoleManager); err != nil {
//		httputil.WriteAuthError(w, err)
//		return
//	}
//
// # API keys
//
// Keys have the form sodav_<base64url(32 random bytes)>. Only the hash and a
// display prefix are stored:
//
//	key, hash, prefix, err := auth.NewKeyGenerator().Generate()
//
// Verification checks existence, the active flag, expiry and permissions:
//
//	principal, err := authn.VerifyAPIKey(ctx, r.Header.Get("X-API-Key"),
//		[]auth.Permission{auth.PermissionDetectionsWrite}, auth.RequireAll)
//
// RequireAll demands every listed permission, RequireAny at least one. The
// wildcard permission "*" satisfies both. A key-authenticated principal acts
// with its owner's profile and role.
//
// # Errors
//
// Failures are *auth.Error values with a Kind that maps to an HTTP status:
//
//	KindUnauthenticated - 401
//	KindForbidden       - 403
//	KindNotFound        - 404
//	KindValidation      - 400
//
// Store outages are reported as KindUnauthenticated but wrap
// ErrStoreUnavailable:
//
//	if errors.Is(err, auth.ErrStoreUnavailable) {
//		// page someone
//	}
package auth
