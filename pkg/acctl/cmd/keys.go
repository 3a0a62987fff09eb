package cmd

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/account-client/pkg/account/browserid"
	"github.com/telekom/account-client/pkg/acctl/output"
	"github.com/telekom/account-client/pkg/audit"
)

func NewKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage identity key pairs",
	}
	cmd.AddCommand(
		newKeysGenerateCommand(),
		newKeysPublicCommand(),
		newKeysAssertionCommand(),
	)
	return cmd
}

func keyTag(bits int) string {
	return fmt.Sprintf("DS%d", bits/8)
}

func newKeysGenerateCommand() *cobra.Command {
	var bits int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an identity key pair unless one already exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if bits == 0 {
				bits = rt.KeyBits()
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			existed := slices.Contains(s.account.KeyPairTags(), keyTag(bits))
			kp, err := s.account.EnsureKeyPair(bits)
			if err != nil {
				return err
			}
			if existed {
				_, _ = fmt.Fprintf(rt.Writer(), "Key pair %s already exists\n", kp.Algorithm())
				return nil
			}
			s.record(cmd.Context(), audit.EventKeyGenerated, map[string]any{"algorithm": kp.Algorithm()})
			_, _ = fmt.Fprintf(rt.Writer(), "Generated key pair %s\n", kp.Algorithm())
			return nil
		},
	}

	cmd.Flags().IntVar(&bits, "bits", 0, "Modulus length: 1024, 2048 or 3072 (default from settings)")
	return cmd
}

func newKeysPublicCommand() *cobra.Command {
	var bits int

	cmd := &cobra.Command{
		Use:   "public",
		Short: "Print the public half of an identity key pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if bits == 0 {
				bits = rt.KeyBits()
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			kp, ok := s.account.KeyPair(keyTag(bits))
			if !ok {
				return fmt.Errorf("no %s key pair, run 'acctl keys generate' first", keyTag(bits))
			}
			public, err := kp.ExportPublic()
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				format = output.FormatJSON
			}
			return output.WriteObject(rt.Writer(), format, public)
		},
	}

	cmd.Flags().IntVar(&bits, "bits", 0, "Modulus length of the key pair (default from settings)")
	return cmd
}

func newKeysAssertionCommand() *cobra.Command {
	var (
		bits     int
		audience string
		issuer   string
		lifetime time.Duration
	)

	cmd := &cobra.Command{
		Use:   "assertion",
		Short: "Mint a signed identity assertion for an audience",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if audience == "" {
				return errors.New("--audience is required")
			}
			if bits == 0 {
				bits = rt.KeyBits()
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			kp, ok := s.account.KeyPair(keyTag(bits))
			if !ok {
				return fmt.Errorf("no %s key pair, run 'acctl keys generate' first", keyTag(bits))
			}
			if issuer == "" {
				issuer = s.account.Config().AuthorizationServer
			}
			assertion, err := browserid.MintAssertion(kp, browserid.AssertionClaims{
				Audience: audience,
				Issuer:   issuer,
				Email:    s.account.Profile().Email,
				Lifetime: lifetime,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), assertion)
			return nil
		},
	}

	cmd.Flags().IntVar(&bits, "bits", 0, "Modulus length of the signing key (default from settings)")
	cmd.Flags().StringVar(&audience, "audience", "", "Origin the assertion is intended for")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Issuer claim (default: the authorization server)")
	cmd.Flags().DurationVar(&lifetime, "lifetime", browserid.DefaultAssertionLifetime, "Validity of the assertion")
	return cmd
}
