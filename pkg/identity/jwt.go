package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/sodav-monitor/sodav/pkg/auth"
)

// JWTVerifier validates provider-signed JWTs against a key set.
type JWTVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewJWTVerifier creates a verifier fetching keys from cfg.JWKSURL.
func NewJWTVerifier(ctx context.Context, cfg Config) (*JWTVerifier, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("jwks_url is required")
	}
	keySet := oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
	return NewJWTVerifierWithKeySet(cfg, keySet, nil), nil
}

// NewJWTVerifierWithKeySet creates a verifier over an existing key set. now
// overrides the clock used for expiry checks when non-nil.
func NewJWTVerifierWithKeySet(cfg Config, keySet oidc.KeySet, now func() time.Time) *JWTVerifier {
	oidcConfig := &oidc.Config{
		ClientID:             cfg.Audience,
		SkipClientIDCheck:    cfg.Audience == "",
		SkipIssuerCheck:      cfg.IssuerURL == "",
		SupportedSigningAlgs: cfg.SigningAlgs,
		Now:                  now,
	}
	return &JWTVerifier{
		verifier: oidc.NewVerifier(cfg.IssuerURL, keySet, oidcConfig),
	}
}

// Verify checks signature, issuer, audience and expiry, then maps the claims
// to an identity. The subject claim becomes the user ID.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	if idToken.Subject == "" {
		return nil, fmt.Errorf("missing subject in token")
	}

	return &auth.Identity{
		ID:     idToken.Subject,
		Email:  getStringValue(claims, "email"),
		Claims: claims,
	}, nil
}

func getStringValue(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
