package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "changestore.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // configuration file or CUE package directory
	Dir     string // overrides the configured store directory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the changestore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "changestore",
		Short: "changestore - change-tracked local object store",
		Long: `A local, schema-versioned object store whose writes are tagged with
the kind of change that produced them, for offline-first sync clients.

The store, its version and its collections are declared in a YAML, CUE or
JSON configuration file. Bumping the version migrates the store on the
next open.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", DefaultConfigPath, "configuration file (.yaml, .yml, .cue, .json) or CUE directory")
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "store directory (overrides the configuration)")

	cmd.AddCommand(NewOpenCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewDropStoreCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
