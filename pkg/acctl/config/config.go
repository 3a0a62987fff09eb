package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	TokenStorageFile     = "file"
	TokenStorageKeychain = "keychain"
)

type Config struct {
	Version        string    `yaml:"version"`
	CurrentAccount string    `yaml:"current-account,omitempty"`
	Accounts       []Account `yaml:"accounts,omitempty"`
	Settings       Settings  `yaml:"settings,omitempty"`
	Audit          *Audit    `yaml:"audit,omitempty"`
}

type Settings struct {
	OutputFormat string `yaml:"output-format,omitempty"`
	TokenStorage string `yaml:"token-storage,omitempty"`
	// Seal encrypts file-stored credentials with a local age identity.
	Seal         bool   `yaml:"seal,omitempty"`
	PollInterval string `yaml:"poll-interval,omitempty"`
	KeyBits      int    `yaml:"key-bits,omitempty"`
	// RequestsPerSecond throttles profile and command requests; 0 disables it.
	RequestsPerSecond float64 `yaml:"requests-per-second,omitempty"`
}

// Account describes one authorization server registration.
type Account struct {
	Name                  string    `yaml:"name"`
	Server                string    `yaml:"server"`
	ClientID              string    `yaml:"client-id"`
	RedirectURI           string    `yaml:"redirect-uri,omitempty"`
	Scopes                []string  `yaml:"scopes,omitempty"`
	Discover              bool      `yaml:"discover,omitempty"`
	Endpoints             Endpoints `yaml:"endpoints,omitempty"`
	CAFile                string    `yaml:"ca-file,omitempty"`
	InsecureSkipTLSVerify bool      `yaml:"insecure-skip-tls-verify,omitempty"`
}

type Endpoints struct {
	Authorization string `yaml:"authorization,omitempty"`
	Token         string `yaml:"token,omitempty"`
	Profile       string `yaml:"profile,omitempty"`
	Commands      string `yaml:"commands,omitempty"`
}

// Audit selects where account events are recorded. Log is implied when the
// block is present but empty.
type Audit struct {
	Log     bool          `yaml:"log,omitempty"`
	Webhook *AuditWebhook `yaml:"webhook,omitempty"`
	Kafka   *AuditKafka   `yaml:"kafka,omitempty"`
}

type AuditWebhook struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type AuditKafka struct {
	Brokers     []string   `yaml:"brokers"`
	Topic       string     `yaml:"topic"`
	Compression string     `yaml:"compression,omitempty"`
	TLS         *KafkaTLS  `yaml:"tls,omitempty"`
	SASL        *KafkaSASL `yaml:"sasl,omitempty"`
}

type KafkaTLS struct {
	CAFile             string `yaml:"ca-file,omitempty"`
	CertFile           string `yaml:"cert-file,omitempty"`
	KeyFile            string `yaml:"key-file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure-skip-tls-verify,omitempty"`
}

type KafkaSASL struct {
	Mechanism   string `yaml:"mechanism"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password-env,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Settings: Settings{
			OutputFormat: "table",
			TokenStorage: TokenStorageFile,
			PollInterval: "1s",
			KeyBits:      2048,
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) FindAccount(name string) (*Account, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", name)
}

func (c *Config) CurrentAccountOrDefault() string {
	if c.CurrentAccount != "" {
		return c.CurrentAccount
	}
	if len(c.Accounts) > 0 {
		return c.Accounts[0].Name
	}
	return ""
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	seen := map[string]bool{}
	for _, acct := range c.Accounts {
		if strings.TrimSpace(acct.Name) == "" {
			return errors.New("account name cannot be empty")
		}
		if strings.ContainsAny(acct.Name, `/\`) {
			return fmt.Errorf("account name %q must not contain path separators", acct.Name)
		}
		if seen[acct.Name] {
			return fmt.Errorf("account %s is defined twice", acct.Name)
		}
		seen[acct.Name] = true
		if strings.TrimSpace(acct.Server) == "" {
			return fmt.Errorf("account %s server is required", acct.Name)
		}
		if strings.TrimSpace(acct.ClientID) == "" {
			return fmt.Errorf("account %s client-id is required", acct.Name)
		}
	}
	if c.CurrentAccount != "" {
		if _, err := c.FindAccount(c.CurrentAccount); err != nil {
			return fmt.Errorf("current-account: %w", err)
		}
	}
	if c.Settings.RequestsPerSecond < 0 {
		return errors.New("requests-per-second must not be negative")
	}
	switch c.Settings.TokenStorage {
	case "", TokenStorageFile, TokenStorageKeychain:
	default:
		return fmt.Errorf("token-storage must be %s or %s", TokenStorageFile, TokenStorageKeychain)
	}
	if c.Audit != nil {
		if c.Audit.Webhook != nil && c.Audit.Webhook.URL == "" {
			return errors.New("audit webhook url is required")
		}
		if k := c.Audit.Kafka; k != nil && (len(k.Brokers) == 0 || k.Topic == "") {
			return errors.New("audit kafka needs brokers and a topic")
		}
	}
	return nil
}

// RedirectURIOrDefault returns the configured redirect URI or the
// conventional "<server>/oauth/success/<client-id>".
func (a *Account) RedirectURIOrDefault() string {
	if a.RedirectURI != "" {
		return a.RedirectURI
	}
	server := strings.TrimRight(a.Server, "/")
	return server + "/oauth/success/" + url.PathEscape(a.ClientID)
}
