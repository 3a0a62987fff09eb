package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.CurrentAccount = "prod"
	cfg.Accounts = []Account{{
		Name:     "prod",
		Server:   "https://accounts.example.com",
		ClientID: "3c49430b43dfba77",
		Scopes:   []string{"profile"},
	}}
	cfg.Audit = &Audit{Kafka: &AuditKafka{Brokers: []string{"kafka:9092"}, Topic: "account-audit"}}

	require.NoError(t, Save(path, &cfg))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.CurrentAccount, loaded.CurrentAccount)
	require.Len(t, loaded.Accounts, 1)
	assert.Equal(t, cfg.Accounts[0], loaded.Accounts[0])
	assert.Equal(t, cfg.Settings, loaded.Settings)
	require.NotNil(t, loaded.Audit)
	assert.Equal(t, "account-audit", loaded.Audit.Kafka.Topic)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - name: stage
    server: https://stage.accounts.example.com
    client-id: abc
    discover: true
    endpoints:
      token: https://oauth.stage.example.com/v1/token
settings:
  token-storage: keychain
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, VersionV1, cfg.Version)
	assert.Equal(t, "stage", cfg.CurrentAccountOrDefault())
	acct, err := cfg.FindAccount("stage")
	require.NoError(t, err)
	assert.True(t, acct.Discover)
	assert.Equal(t, "https://oauth.stage.example.com/v1/token", acct.Endpoints.Token)
	assert.Equal(t, TokenStorageKeychain, cfg.Settings.TokenStorage)
	require.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts: [:"), 0o600))
	_, err = Load(path)
	require.ErrorContains(t, err, "failed to parse config")
}

func TestSaveNil(t *testing.T) {
	require.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}

func TestFindAccount(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.CurrentAccountOrDefault())
	cfg.Accounts = []Account{{Name: "a"}, {Name: "b"}}

	acct, err := cfg.FindAccount("b")
	require.NoError(t, err)
	acct.Server = "https://b.example.com"
	assert.Equal(t, "https://b.example.com", cfg.Accounts[1].Server, "FindAccount returns a pointer into the config")

	_, err = cfg.FindAccount("c")
	require.ErrorContains(t, err, "account not found: c")

	cfg.CurrentAccount = "b"
	assert.Equal(t, "b", cfg.CurrentAccountOrDefault())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Accounts = []Account{{Name: "prod", Server: "https://accounts.example.com", ClientID: "c"}}
		return cfg
	}
	require.NoError(t, func() error { c := valid(); return c.Validate() }())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no version", func(c *Config) { c.Version = "" }, "version"},
		{"empty name", func(c *Config) { c.Accounts[0].Name = " " }, "name cannot be empty"},
		{"separator in name", func(c *Config) { c.Accounts[0].Name = "../x" }, "path separators"},
		{"duplicate", func(c *Config) { c.Accounts = append(c.Accounts, c.Accounts[0]) }, "defined twice"},
		{"no server", func(c *Config) { c.Accounts[0].Server = "" }, "server is required"},
		{"no client id", func(c *Config) { c.Accounts[0].ClientID = "" }, "client-id is required"},
		{"unknown current", func(c *Config) { c.CurrentAccount = "stage" }, "account not found"},
		{"storage", func(c *Config) { c.Settings.TokenStorage = "vault" }, "token-storage"},
		{"negative rate", func(c *Config) { c.Settings.RequestsPerSecond = -1 }, "requests-per-second"},
		{"webhook", func(c *Config) { c.Audit = &Audit{Webhook: &AuditWebhook{}} }, "webhook url"},
		{"kafka", func(c *Config) { c.Audit = &Audit{Kafka: &AuditKafka{Topic: "t"}} }, "brokers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestRedirectURIOrDefault(t *testing.T) {
	acct := Account{Server: "https://accounts.example.com/", ClientID: "3c49430b43dfba77"}
	assert.Equal(t, "https://accounts.example.com/oauth/success/3c49430b43dfba77", acct.RedirectURIOrDefault())

	acct.RedirectURI = "http://127.0.0.1:8400/callback"
	assert.Equal(t, "http://127.0.0.1:8400/callback", acct.RedirectURIOrDefault())
}
