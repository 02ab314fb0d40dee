package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/sodav-monitor/sodav/pkg/auth"
)

// Verifier modes
const (
	ModeJWKS   = "jwks"
	ModeGoTrue = "gotrue"
)

// Config selects and configures a verifier.
type Config struct {
	Mode        string        `yaml:"mode"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	JWKSURL     string        `yaml:"jwks_url"`
	IssuerURL   string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	SigningAlgs []string      `yaml:"signing_algs"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheSize   int           `yaml:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// New builds the verifier selected by cfg.Mode, wrapped in a cache when
// cfg.CacheSize is positive.
func New(ctx context.Context, cfg Config) (auth.IdentityVerifier, error) {
	var (
		verifier auth.IdentityVerifier
		err      error
	)

	switch cfg.Mode {
	case ModeJWKS, "":
		verifier, err = NewJWTVerifier(ctx, cfg)
	case ModeGoTrue:
		verifier, err = NewGoTrueVerifier(cfg, nil)
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		verifier = NewCachingVerifier(verifier, cfg.CacheSize, cfg.CacheTTL)
	}
	return verifier, nil
}
