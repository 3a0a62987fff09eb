package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/account-client/pkg/audit"
)

func NewLoginCommand() *cobra.Command {
	var (
		pairingURL string
		scopes     []string
		noKeys     bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the configured account",
		Long: `Sign in to the configured account with an authorization code flow.

When the account's redirect URI points at a loopback address, acctl listens
there for the callback. Otherwise paste the URL the browser was redirected to.
With --pairing-url the flow is started from a pairing link shown by another
signed-in device.`,
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

			var authURL string
			if pairingURL != "" {
				authURL, err = s.account.BeginPairingFlow(pairingURL, scopes)
			} else {
				authURL, err = s.account.BeginAuthorizationFlow(scopes, !noKeys)
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			err = rt.authorize(ctx, cmd.InOrStdin(), s.account.Config().RedirectURI, authURL, func(code, state string) error {
				return s.account.CompleteAuthorizationFlow(ctx, code, state)
			})
			if err != nil {
				return err
			}

			s.record(cmd.Context(), audit.EventAuthenticated, map[string]any{"pairing": pairingURL != ""})
			profile := s.account.Profile()
			who := profile.Email
			if who == "" {
				who = profile.UID
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Signed in as %s on device %s\n", who, profile.DeviceID)
			return nil
		},
	}

	cmd.Flags().StringVar(&pairingURL, "pairing-url", "", "Pairing link shown by another device")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to request instead of the configured ones")
	cmd.Flags().BoolVar(&noKeys, "no-keys", false, "Do not request derived keys")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the browser")
	return cmd
}
