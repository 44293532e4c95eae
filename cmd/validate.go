package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/pkg/export"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var printSchema bool

	cmd := &cobra.Command{
		Use:   "validate [archive.json]",
		Short: "Check a JSON archive against the archive schema",
		Long: `Check that a JSON archive (written by 'minutes ingest --archive' or
'minutes meetings export') matches the archive schema and decodes into
meeting records.

Examples:
  minutes validate seances.json

  # Print the schema
  minutes validate --schema`,
		Args: func(cmd *cobra.Command, args []string) error {
			if printSchema {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if printSchema {
				_, err := out.Write(export.Schema())
				return err
			}
			meetings, err := readArchive(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s: valid archive, %d meeting(s)\n", args[0], len(meetings))
			return err
		},
	}

	cmd.Flags().BoolVar(&printSchema, "schema", false, "Print the archive JSON schema instead")

	return cmd
}
