package remote

import (
	"context"

	"github.com/telekom/account-client/pkg/account"
)

type profileResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// FetchProfile reads the profile endpoint with accessToken.
func (c *Client) FetchProfile(ctx context.Context, cfg account.Config, accessToken string) (account.Profile, error) {
	var resp profileResponse
	if err := c.getJSON(ctx, "profile", cfg.ProfileEndpoint(), accessToken, &resp); err != nil {
		return account.Profile{}, err
	}
	return account.Profile{UID: resp.UID, Email: resp.Email, DisplayName: resp.DisplayName}, nil
}
