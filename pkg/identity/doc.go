// Package identity verifies bearer tokens against the identity provider.
//
// Two verifiers implement auth.IdentityVerifier:
//
//   - JWTVerifier checks the token signature locally against the provider's
//     JWKS document using go-oidc. No network round trip per request once the
//     key set is cached.
//   - GoTrueVerifier asks the provider's /auth/v1/user endpoint who the token
//     belongs to. It is the fallback for projects still signing with a shared
//     secret.
//
// CachingVerifier wraps either one with a short-lived LRU so bursts of
// requests with the same token hit the provider once.
//
//	verifier, err := identity.New(ctx, cfg.Identity)
//	if err != nil {
//		return err
//	}
//	authn := auth.NewAuthenticator(identity.NewCachingVerifier(verifier, 1024, 30*time.Second), profiles, keys)
package identity
