package idp

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Discover resolves the provider endpoints from its published OIDC metadata
// instead of assuming the Auth0 URL layout. issuer is the provider's issuer
// URL, e.g. "https://accounts.example.com".
func Discover(ctx context.Context, issuer string) (Endpoints, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("[idp Discover] failed to discover provider %q: %w", issuer, err)
	}

	var metadata struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return Endpoints{}, fmt.Errorf("[idp Discover] failed to read provider metadata: %w", err)
	}

	endpoint := provider.Endpoint()
	return Endpoints{
		AuthorizeURL: endpoint.AuthURL,
		TokenURL:     endpoint.TokenURL,
		JWKSURL:      metadata.JWKSURL,
		Issuer:       issuer,
	}, nil
}
