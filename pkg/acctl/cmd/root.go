package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/account-client/pkg/acctl/config"
	"github.com/telekom/account-client/pkg/system"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer

	// StateDir overrides where file-stored account snapshots live.
	StateDir string
	// HTTPClient replaces the client built from the account's TLS settings.
	HTTPClient *http.Client
	// OpenBrowser is called with the authorization URL during login.
	OpenBrowser func(url string) error
	// Logger replaces the logger built from --verbose.
	Logger *zap.Logger
}

type runtimeState struct {
	configPath           string
	cfg                  *config.Config
	accountOverride      string
	outputFormat         string
	tokenStorageOverride string
	noBrowser            bool
	verbose              bool
	writer               io.Writer

	stateDir    string
	httpClient  *http.Client
	openBrowser func(string) error
	logger      *zap.Logger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
		OpenBrowser:  openBrowser,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:  cfg.ConfigPath,
		writer:      cfg.OutputWriter,
		stateDir:    cfg.StateDir,
		httpClient:  cfg.HTTPClient,
		openBrowser: cfg.OpenBrowser,
		logger:      cfg.Logger,
	}

	root := &cobra.Command{
		Use:           "acctl",
		Short:         "Account client: sign in, manage device identity and receive device commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// ExecuteContext replaces the root context set below
			if cmd.Context().Value(runtimeKey{}) == nil {
				cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, rt))
			}
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.accountOverride == "" {
				rt.accountOverride = os.Getenv("ACCTL_ACCOUNT")
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("ACCTL_OUTPUT")
			}
			if rt.tokenStorageOverride == "" {
				rt.tokenStorageOverride = os.Getenv("ACCTL_TOKEN_STORAGE")
			}
			if !rt.noBrowser {
				rt.noBrowser = strings.EqualFold(os.Getenv("ACCTL_NO_BROWSER"), "true")
			}
			if !rt.verbose {
				rt.verbose = strings.EqualFold(os.Getenv("ACCTL_VERBOSE"), "true")
			}
			if rt.logger == nil {
				logger, err := system.NewLogger(rt.verbose)
				if err != nil {
					return fmt.Errorf("failed to create logger: %w", err)
				}
				rt.logger = logger
			}

			// Skip config loading for commands that don't need it
			if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}

			cfg, err := config.Load(rt.configPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("no config at %s, run 'acctl config init' first", rt.configPath)
				}
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config %s: %w", rt.configPath, err)
			}
			rt.cfg = cfg
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.accountOverride, "account", "a", "", "Account name override")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	root.PersistentFlags().StringVar(&rt.tokenStorageOverride, "token-storage", "", "Credential storage backend: keychain or file")
	root.PersistentFlags().BoolVar(&rt.noBrowser, "no-browser", false, "Print the sign-in URL instead of opening a browser")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable debug logging")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewLoginCommand(),
		NewStatusCommand(),
		NewSetDisplayNameCommand(),
		NewLogoutCommand(),
		NewKeysCommand(),
		NewPollCommand(),
		NewConfigCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) ResolveAccountName() string {
	if rt.accountOverride != "" {
		return rt.accountOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentAccountOrDefault()
	}
	return ""
}

func (rt *runtimeState) ResolveAccount() (*config.Account, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	name := rt.ResolveAccountName()
	if name == "" {
		return nil, errors.New("no account configured")
	}
	return rt.cfg.FindAccount(name)
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return rt.cfg.Settings.OutputFormat
	}
	return "table"
}

func (rt *runtimeState) TokenStorage() string {
	if rt.tokenStorageOverride != "" {
		return rt.tokenStorageOverride
	}
	if rt.cfg != nil && rt.cfg.Settings.TokenStorage != "" {
		return rt.cfg.Settings.TokenStorage
	}
	return config.TokenStorageFile
}

func (rt *runtimeState) KeyBits() int {
	if rt.cfg != nil && rt.cfg.Settings.KeyBits > 0 {
		return rt.cfg.Settings.KeyBits
	}
	return 2048
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) Logger() *zap.Logger {
	if rt.logger != nil {
		return rt.logger
	}
	return zap.NewNop()
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}

func (rt *runtimeState) statePath(name string) string {
	if rt.stateDir != "" {
		return filepath.Join(rt.stateDir, name+".json")
	}
	return config.DefaultStatePath(name)
}

func (rt *runtimeState) identityPath() string {
	if rt.stateDir != "" {
		return filepath.Join(rt.stateDir, "identity.age")
	}
	return config.DefaultIdentityPath()
}
