package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telekom/account-client/pkg/acctl/output"
	"github.com/telekom/account-client/pkg/audit"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sign-in state and device identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			status := output.NewStatus(s.name, s.account)
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				output.WriteStatusTable(rt.Writer(), status)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, status)
		},
	}
}

func NewSetDisplayNameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-display-name NAME",
		Short: "Rename this device",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			name := strings.Join(args, " ")
			if err := s.account.SetDisplayName(name); err != nil {
				return err
			}
			display := s.account.Profile().DisplayName
			s.record(cmd.Context(), audit.EventDisplayNameSet, map[string]any{"display_name": display})
			_, _ = fmt.Fprintf(rt.Writer(), "Device renamed to %q\n", display)
			return nil
		},
	}
}

func NewLogoutCommand() *cobra.Command {
	var forget bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the account",
		Long: `Sign out of the account. Identity keys and the device identity are kept
unless --forget is given, which deletes all stored state for the account.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			settings, err := rt.ResolveAccount()
			if err != nil {
				return err
			}

			s, err := rt.openSession(cmd.Context(), settings)
			if err != nil {
				if !forget {
					return err
				}
				// unreadable state can still be forgotten
				st, storeErr := rt.openStore(settings.Name)
				if storeErr != nil {
					return err
				}
				if err := st.Delete(); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(rt.Writer(), "Forgot stored state for %s\n", settings.Name)
				return nil
			}
			defer s.Close()

			details := map[string]any{"forget": forget}
			// record first so the event still carries the uid
			s.record(cmd.Context(), audit.EventDisconnected, details)
			if err := s.account.Disconnect(); err != nil {
				return err
			}
			if forget {
				if err := s.store.Delete(); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(rt.Writer(), "Signed out of %s and forgot stored state\n", s.name)
				return nil
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Signed out of %s\n", s.name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&forget, "forget", false, "Also delete identity keys and device identity")
	return cmd
}
