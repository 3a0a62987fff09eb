package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telekom/account-client/pkg/acctl/config"
	"github.com/telekom/account-client/pkg/acctl/output"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage acctl configuration",
	}

	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigAccountsCommand(),
		newConfigAddAccountCommand(),
		newConfigUseAccountCommand(),
	)

	return cmd
}

type accountFlags struct {
	name        string
	server      string
	clientID    string
	redirectURI string
	scopes      []string
	discover    bool
	caFile      string
	insecure    bool
}

func (f *accountFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "default", "Account name")
	cmd.Flags().StringVar(&f.server, "server", "", "Authorization server URL")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "OAuth client ID")
	cmd.Flags().StringVar(&f.redirectURI, "redirect-uri", "", "Registered redirect URI (default <server>/oauth/success/<client-id>)")
	cmd.Flags().StringSliceVar(&f.scopes, "scope", []string{"profile"}, "Scopes to request")
	cmd.Flags().BoolVar(&f.discover, "discover", false, "Read endpoints from the server's discovery document")
	cmd.Flags().StringVar(&f.caFile, "ca-file", "", "CA bundle for the authorization server")
	cmd.Flags().BoolVar(&f.insecure, "insecure-skip-tls-verify", false, "Skip TLS verification")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("client-id")
}

func (f *accountFlags) account() config.Account {
	return config.Account{
		Name:                  f.name,
		Server:                f.server,
		ClientID:              f.clientID,
		RedirectURI:           f.redirectURI,
		Scopes:                f.scopes,
		Discover:              f.discover,
		CAFile:                f.caFile,
		InsecureSkipTLSVerify: f.insecure,
	}
}

func newConfigInitCommand() *cobra.Command {
	var (
		flags accountFlags
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an acctl config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPathValue()
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			cfg := config.DefaultConfig()
			cfg.CurrentAccount = flags.name
			cfg.Accounts = append(cfg.Accounts, flags.account())
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Initialized config at %s\n", path)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")
	return cmd
}

func newConfigAddAccountCommand() *cobra.Command {
	var flags accountFlags

	cmd := &cobra.Command{
		Use:   "add-account",
		Short: "Add an account to the config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if _, err := rt.cfg.FindAccount(flags.name); err == nil {
				return fmt.Errorf("account %s already exists", flags.name)
			}
			rt.cfg.Accounts = append(rt.cfg.Accounts, flags.account())
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Added account %s\n", flags.name)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				format = output.FormatYAML
			}
			return output.WriteObject(rt.Writer(), format, rt.cfg)
		},
	}
}

func newConfigAccountsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-accounts",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			output.WriteAccountTable(rt.Writer(), rt.cfg.Accounts, rt.cfg.CurrentAccountOrDefault())
			return nil
		},
	}
}

func newConfigUseAccountCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "use-account NAME",
		Aliases: []string{"use"},
		Short:   "Set the default account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindAccount(name); err != nil {
				return err
			}
			rt.cfg.CurrentAccount = name
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "%s\n", name)
			return nil
		},
	}
}
