package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/sodav-monitor/sodav/pkg/auth"
)

// ErrTokenRejected is returned when the provider refuses the token.
var ErrTokenRejected = errors.New("token rejected by identity provider")

const userPath = "/auth/v1/user"

// GoTrueVerifier resolves tokens by calling the provider's user endpoint.
type GoTrueVerifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type gotrueUser struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
}

// NewGoTrueVerifier creates a verifier for the provider at cfg.URL. A nil
// client gets an instrumented client with cfg.Timeout.
func NewGoTrueVerifier(cfg Config, client *http.Client) (*GoTrueVerifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("identity url is required")
	}
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &GoTrueVerifier{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
	}, nil
}

// Verify asks the provider who owns token. Transport failures and non-2xx
// answers are errors; the caller treats both as unauthenticated.
func (v *GoTrueVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+userPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, v.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
	)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrTokenRejected
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user gotrueUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("identity provider returned no user id")
	}

	return &auth.Identity{
		ID:    user.ID,
		Email: user.Email,
		Claims: map[string]interface{}{
			"role":          user.Role,
			"app_metadata":  user.AppMetadata,
			"user_metadata": user.UserMetadata,
		},
	}, nil
}
