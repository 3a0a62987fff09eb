package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/account-client/pkg/account"
	"github.com/telekom/account-client/pkg/account/remote"
	"github.com/telekom/account-client/pkg/account/store"
	"github.com/telekom/account-client/pkg/acctl/config"
	"github.com/telekom/account-client/pkg/audit"
	"github.com/telekom/account-client/pkg/system"
)

// accountSession bundles everything a command needs to act on the selected
// account. The account persists itself to store on every mutation.
type accountSession struct {
	name     string
	settings *config.Account
	account  *account.Account
	store    store.Store
	client   *remote.Client
	recorder *audit.Recorder
	log      *zap.SugaredLogger
}

func (s *accountSession) Close() {
	if err := s.recorder.Close(); err != nil {
		s.log.Debugw("Closing audit sink failed", "error", err)
	}
}

// record writes an audit event for the session's account.
func (s *accountSession) record(ctx context.Context, eventType audit.EventType, details map[string]any) {
	profile := s.account.Profile()
	s.recorder.SetDeviceID(profile.DeviceID)
	s.recorder.Record(ctx, eventType, profile.UID, details)
}

func openSession(cmd *cobra.Command) (*accountSession, error) {
	rt, err := getRuntime(cmd)
	if err != nil {
		return nil, err
	}
	if err := rt.EnsureConfigLoaded(); err != nil {
		return nil, err
	}
	settings, err := rt.ResolveAccount()
	if err != nil {
		return nil, err
	}
	return rt.openSession(cmd.Context(), settings)
}

func (rt *runtimeState) openSession(ctx context.Context, settings *config.Account) (*accountSession, error) {
	log := rt.Logger().Sugar().With(system.AccountFields(settings.Name, "")...)

	clientOpts := []remote.Option{remote.WithLogger(log)}
	if rt.httpClient != nil {
		clientOpts = append(clientOpts, remote.WithHTTPClient(rt.httpClient))
	} else if settings.CAFile != "" || settings.InsecureSkipTLSVerify {
		clientOpts = append(clientOpts, remote.WithTLSConfig(settings.CAFile, settings.InsecureSkipTLSVerify))
	}
	if rt.cfg != nil && rt.cfg.Settings.RequestsPerSecond > 0 {
		rps := rt.cfg.Settings.RequestsPerSecond
		clientOpts = append(clientOpts, remote.WithRateLimit(rps, max(1, int(rps))))
	}
	client, err := remote.New(clientOpts...)
	if err != nil {
		return nil, err
	}

	st, err := rt.openStore(settings.Name)
	if err != nil {
		return nil, err
	}

	opts := []account.Option{
		account.WithPersister(st),
		account.WithTokenExchanger(client),
		account.WithCommandFetcher(client),
		account.WithLogger(log),
	}

	var acct *account.Account
	data, err := st.Load()
	switch {
	case errors.Is(err, store.ErrNotFound):
		cfg, err := rt.accountConfig(ctx, client, settings)
		if err != nil {
			return nil, err
		}
		acct, err = account.New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		log.Debugw("Created new account state")
	case err != nil:
		return nil, fmt.Errorf("failed to load stored credentials: %w", err)
	default:
		acct, err = account.Reconstruct(data, opts...)
		if err != nil {
			return nil, fmt.Errorf("stored credentials for %s are unusable (run 'acctl logout --forget'): %w", settings.Name, err)
		}
		if !configMatches(acct.Config(), settings) {
			cfg, err := rt.accountConfig(ctx, client, settings)
			if err != nil {
				return nil, err
			}
			log.Infow("Account settings changed, signing out", "server", cfg.AuthorizationServer)
			if err := acct.Reconfigure(cfg); err != nil {
				return nil, err
			}
		}
	}

	recorder, err := rt.auditRecorder(settings.Name)
	if err != nil {
		return nil, err
	}

	return &accountSession{
		name:     settings.Name,
		settings: settings,
		account:  acct,
		store:    st,
		client:   client,
		recorder: recorder,
		log:      log,
	}, nil
}

func (rt *runtimeState) openStore(name string) (store.Store, error) {
	st, err := store.New(rt.TokenStorage(), rt.statePath(name), name)
	if err != nil {
		return nil, err
	}
	if fs, ok := st.(*store.FileStore); ok && rt.cfg != nil && rt.cfg.Settings.Seal {
		identity, err := store.LoadOrCreateIdentity(rt.identityPath())
		if err != nil {
			return nil, err
		}
		fs.Identity = identity
	}
	return st, nil
}

// accountConfig turns CLI settings into an account.Config, running provider
// discovery when asked to.
func (rt *runtimeState) accountConfig(ctx context.Context, client *remote.Client, settings *config.Account) (account.Config, error) {
	redirect := settings.RedirectURIOrDefault()
	var (
		cfg account.Config
		err error
	)
	if settings.Discover {
		cfg, err = client.Discover(ctx, settings.Server, settings.ClientID, redirect, settings.Scopes)
	} else {
		cfg, err = account.NewConfig(settings.Server, settings.ClientID, redirect, settings.Scopes...)
	}
	if err != nil {
		return account.Config{}, err
	}
	overrideEndpoint(&cfg.Endpoints.Authorization, settings.Endpoints.Authorization)
	overrideEndpoint(&cfg.Endpoints.Token, settings.Endpoints.Token)
	overrideEndpoint(&cfg.Endpoints.Profile, settings.Endpoints.Profile)
	overrideEndpoint(&cfg.Endpoints.Commands, settings.Endpoints.Commands)
	return cfg, cfg.Validate()
}

func overrideEndpoint(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// configMatches reports whether a stored config still belongs to settings.
// Discovered endpoints are not compared; they are refreshed on the next
// Reconfigure.
func configMatches(stored account.Config, settings *config.Account) bool {
	want, err := account.NewConfig(settings.Server, settings.ClientID, settings.RedirectURIOrDefault(), settings.Scopes...)
	if err != nil {
		return false
	}
	if stored.AuthorizationServer != want.AuthorizationServer ||
		stored.ClientID != want.ClientID ||
		stored.RedirectURI != want.RedirectURI ||
		!slices.Equal(stored.Scopes, want.Scopes) {
		return false
	}
	if settings.Discover {
		return true
	}
	pairs := [][2]string{
		{stored.Endpoints.Authorization, settings.Endpoints.Authorization},
		{stored.Endpoints.Token, settings.Endpoints.Token},
		{stored.Endpoints.Profile, settings.Endpoints.Profile},
		{stored.Endpoints.Commands, settings.Endpoints.Commands},
	}
	for _, pair := range pairs {
		if pair[0] != pair[1] {
			return false
		}
	}
	return true
}

// auditRecorder builds the sinks named in the audit block. No block means no
// auditing.
func (rt *runtimeState) auditRecorder(name string) (*audit.Recorder, error) {
	if rt.cfg == nil || rt.cfg.Audit == nil {
		return nil, nil
	}
	cfg := rt.cfg.Audit
	logger := rt.Logger()

	var sinks []audit.Sink
	if cfg.Log || (cfg.Webhook == nil && cfg.Kafka == nil) {
		sinks = append(sinks, audit.NewLogSink(logger))
	}
	if cfg.Webhook != nil {
		sink, err := audit.NewWebhookSink(audit.WebhookSinkConfig{URL: cfg.Webhook.URL, Headers: cfg.Webhook.Headers}, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.Kafka != nil {
		kafkaCfg, err := kafkaSinkConfig(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		sink, err := audit.NewKafkaSink(kafkaCfg, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	var sink audit.Sink = audit.NewMultiSink(sinks, logger)
	if len(sinks) == 1 {
		sink = sinks[0]
	}
	return audit.NewRecorder(sink, name, logger), nil
}

func kafkaSinkConfig(cfg *config.AuditKafka) (audit.KafkaSinkConfig, error) {
	out := audit.KafkaSinkConfig{
		Brokers:          cfg.Brokers,
		Topic:            cfg.Topic,
		CompressionCodec: cfg.Compression,
	}
	if cfg.TLS != nil {
		tlsCfg := &audit.KafkaTLSConfig{Enabled: true, InsecureSkipVerify: cfg.TLS.InsecureSkipVerify}
		for _, f := range []struct {
			path string
			dst  *[]byte
		}{
			{cfg.TLS.CAFile, &tlsCfg.CACert},
			{cfg.TLS.CertFile, &tlsCfg.ClientCert},
			{cfg.TLS.KeyFile, &tlsCfg.ClientKey},
		} {
			if f.path == "" {
				continue
			}
			data, err := os.ReadFile(f.path)
			if err != nil {
				return audit.KafkaSinkConfig{}, fmt.Errorf("failed to read kafka TLS file: %w", err)
			}
			*f.dst = data
		}
		out.TLS = tlsCfg
	}
	if cfg.SASL != nil {
		out.SASL = &audit.KafkaSASLConfig{
			Mechanism: cfg.SASL.Mechanism,
			Username:  cfg.SASL.Username,
			Password:  os.Getenv(cfg.SASL.PasswordEnv),
		}
	}
	return out, nil
}
