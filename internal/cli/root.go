package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Format string // "json" | "text"

	// Connect builds the services a command runs against. Tests replace it.
	Connect Connector
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the operator CLI
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Connect: ConnectFromConfig})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correlativectl",
		Short: "Operate the correlative numbering engine",
		Long:  "Inspect numbering scopes, issue codes and run period resets against the numbering store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !lo.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewScopesCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))

	return cmd
}

// printJSON writes v indented when the json format is selected and reports whether it did
func printJSON(opts *RootOptions, w io.Writer, v any) (bool, error) {
	if opts.Format != "json" {
		return false, nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}
