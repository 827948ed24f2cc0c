// Package idp is the gate's client side of the identity provider: building
// the authorize redirect and exchanging authorization codes for tokens.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-auth-gate/internal/errors"
)

// Endpoints are the provider URLs the client talks to.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	JWKSURL      string
	Issuer       string
}

// DefaultEndpoints derives the provider URLs from its domain, following the
// Auth0 layout. Use Discover for providers with different layouts.
func DefaultEndpoints(domain string) Endpoints {
	base := "https://" + domain
	return Endpoints{
		AuthorizeURL: base + "/authorize",
		TokenURL:     base + "/oauth/token",
		JWKSURL:      base + "/.well-known/jwks.json",
		Issuer:       base + "/",
	}
}

// ClientConfig configures the OAuth client.
type ClientConfig struct {
	Endpoints    Endpoints
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	HTTPTimeout  time.Duration
}

// TokenResponse is the provider's token endpoint response. Raw carries the
// exact bytes received, so sessions can persist the response verbatim.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	IDToken          string `json:"id_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`

	Raw []byte `json:"-"`
}

// ParseTokenResponse decodes stored token-response bytes.
func ParseTokenResponse(raw []byte) (*TokenResponse, error) {
	var tr TokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, errors.Wrapf(err, "[idp ParseTokenResponse] undecodable token response")
	}
	tr.Raw = raw
	return &tr, nil
}

// Client performs the two outbound calls to the identity provider.
type Client struct {
	cfg         ClientConfig
	oauthConfig *oauth2.Config
	httpClient  *http.Client
}

// NewClient creates a client with bounded timeouts on every provider call.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		cfg: cfg,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.Endpoints.AuthorizeURL,
				TokenURL: cfg.Endpoints.TokenURL,
			},
		},
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AuthorizeURL builds the provider's authorize URL carrying the given state.
// Deterministic given configuration and state.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauthConfig.AuthCodeURL(state)
}

// exchangeRequest is the token endpoint request body.
type exchangeRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
}

// Exchange swaps an authorization code for tokens with a single POST to the
// provider's token endpoint. The provider rejects a code's second use, so a
// replayed callback fails here rather than minting a second session.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	body, err := json.Marshal(exchangeRequest{
		GrantType:    "authorization_code",
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Code:         code,
		RedirectURI:  c.cfg.RedirectURI,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "[idp Exchange] failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoints.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "[idp Exchange] failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExchangeFailed, "token endpoint unreachable: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExchangeFailed, "reading token response: %v", err)
	}

	tr, parseErr := ParseTokenResponse(respBody)
	if parseErr == nil && tr.Error != "" {
		return nil, errors.Wrapf(errors.ErrProviderError, "%s: %s", tr.Error, tr.ErrorDescription)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(errors.ErrExchangeFailed, "token endpoint returned status %d", resp.StatusCode)
	}
	if parseErr != nil {
		return nil, errors.Wrapf(errors.ErrExchangeFailed, "undecodable token response: %v", parseErr)
	}

	return tr, nil
}
