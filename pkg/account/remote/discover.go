package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/telekom/account-client/pkg/account"
)

// Discover builds a Config from the server's OpenID Connect discovery
// document. Endpoints the document names override the derived defaults.
func (c *Client) Discover(ctx context.Context, server, clientID, redirectURI string, scopes []string) (account.Config, error) {
	server = strings.TrimRight(server, "/")
	ctx = oidc.ClientContext(ctx, c.http)
	provider, err := oidc.NewProvider(ctx, server)
	if err != nil {
		return account.Config{}, fmt.Errorf("%w: failed to discover provider: %w", account.ErrConfiguration, err)
	}
	endpoint := provider.Endpoint()
	cfg := account.Config{
		AuthorizationServer: server,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scopes:              scopes,
		Endpoints: account.Endpoints{
			Authorization: endpoint.AuthURL,
			Token:         endpoint.TokenURL,
			Profile:       provider.UserInfoEndpoint(),
		},
	}
	if err := cfg.Validate(); err != nil {
		return account.Config{}, err
	}
	c.log.Debugw("Discovered provider endpoints", "authorization", endpoint.AuthURL, "token", endpoint.TokenURL)
	return cfg, nil
}
