package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/buildinfo"
)

// binaryName is the name reported in build info.
const binaryName = "minutes"

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch config.OutputFormat(output) {
			case config.OutputFormatJSON:
				data, err := buildinfo.JSON(binaryName)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			case config.OutputFormatYAML:
				return writeStructured(out, config.OutputFormatYAML, buildinfo.Get(binaryName))
			case "", config.OutputFormatText:
				info := buildinfo.Get(binaryName)
				_, err := fmt.Fprintf(out, "%s %s\n  go: %s\n", binaryName, buildinfo.String(), info.GoVersion)
				return err
			default:
				return fmt.Errorf("invalid output format: %q (must be text, json, or yaml)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}
