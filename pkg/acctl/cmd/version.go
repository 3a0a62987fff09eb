package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/account-client/pkg/acctl/output"
	"github.com/telekom/account-client/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show acctl version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()

			// Get runtime if available (for custom writer), but don't fail if missing
			rt, _ := getRuntime(cmd)
			writer := cmd.OutOrStdout()
			format := ""
			if rt != nil {
				writer = rt.Writer()
				format = rt.outputFormat
			}

			switch format {
			case "json":
				return output.WriteObject(writer, output.FormatJSON, info)
			case "yaml":
				return output.WriteObject(writer, output.FormatYAML, info)
			default:
				_, _ = fmt.Fprintf(writer, "acctl %s (commit: %s, built: %s)\n", info.Version, info.GitCommit, info.BuildDate)
				return nil
			}
		},
	}
}
