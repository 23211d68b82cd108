package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/atlekbai/crud_registry/internal/schema"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	SchemaFile string
	Format     string // "text" | "json"
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the condc root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "condc",
		Short: "Compile JSON conditions to SQL",
		Long: `condc compiles JSON filter conditions against a YAML object schema
and prints the SQL the CRUD service would run.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.SchemaFile == "" {
				return fmt.Errorf("--schema is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.SchemaFile, "schema", "s", "", "YAML schema file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewObjectsCommand(opts))

	return cmd
}

func loadSchema(path string) (*schema.Cache, error) {
	cache := schema.NewCache()
	if err := cache.LoadFile(path); err != nil {
		return nil, err
	}
	return cache, nil
}
