package account

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

const (
	defaultAuthorizationPath = "/authorization"
	defaultTokenPath         = "/v1/oauth/token"
	defaultProfilePath       = "/v1/profile"
	defaultCommandsPath      = "/v1/account/device/commands"
	pairingPath              = "/pair/supp"
)

// Endpoints overrides the URLs derived from Config.AuthorizationServer. Empty
// fields fall back to the derived defaults.
type Endpoints struct {
	Authorization string `json:"authorization,omitempty"`
	Token         string `json:"token,omitempty"`
	Profile       string `json:"profile,omitempty"`
	Commands      string `json:"commands,omitempty"`
}

// Config identifies the authorization server and this client. It is treated as
// immutable: an Account only ever hands out copies.
type Config struct {
	AuthorizationServer string    `json:"authorization_server"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scopes              []string  `json:"scopes,omitempty"`
	Endpoints           Endpoints `json:"endpoints,omitempty"`
}

// NewConfig builds and validates an explicit configuration.
func NewConfig(server, clientID, redirectURI string, scopes ...string) (Config, error) {
	cfg := Config{
		AuthorizationServer: strings.TrimRight(server, "/"),
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scopes:              slices.Clone(scopes),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports ErrConfiguration when a required field is missing or a URL
// is not an absolute http(s) URL.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrConfiguration)
	}
	if err := validateURL("authorization server", c.AuthorizationServer); err != nil {
		return err
	}
	if err := validateURL("redirect uri", c.RedirectURI); err != nil {
		return err
	}
	for name, endpoint := range map[string]string{
		"authorization endpoint": c.Endpoints.Authorization,
		"token endpoint":         c.Endpoints.Token,
		"profile endpoint":       c.Endpoints.Profile,
		"commands endpoint":      c.Endpoints.Commands,
	} {
		if endpoint == "" {
			continue
		}
		if err := validateURL(name, endpoint); err != nil {
			return err
		}
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s is required", ErrConfiguration, name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid %s: %v", ErrConfiguration, name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute http(s) URL: %s", ErrConfiguration, name, raw)
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Scopes = slices.Clone(c.Scopes)
	return c
}

func (c Config) AuthorizationEndpoint() string {
	return c.endpoint(c.Endpoints.Authorization, defaultAuthorizationPath)
}

func (c Config) TokenEndpoint() string {
	return c.endpoint(c.Endpoints.Token, defaultTokenPath)
}

func (c Config) ProfileEndpoint() string {
	return c.endpoint(c.Endpoints.Profile, defaultProfilePath)
}

func (c Config) CommandsEndpoint() string {
	return c.endpoint(c.Endpoints.Commands, defaultCommandsPath)
}

// PairingEndpoint is the supplicant page of the pairing flow on the
// authorization server.
func (c Config) PairingEndpoint() string {
	return c.endpoint("", pairingPath)
}

func (c Config) endpoint(override, path string) string {
	if override != "" {
		return override
	}
	return strings.TrimRight(c.AuthorizationServer, "/") + path
}
