package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vdb/internal/catalog"
	"vdb/internal/codec"
	"vdb/internal/core/bootstrap"
	"vdb/internal/loader"
	"vdb/internal/schema"
)

const (
	FlagFormat = "format"
	FlagOutput = "output"
)

func newSchemaCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the schema catalog",
	}
	cmd.AddCommand(newSchemaRegisterCommand(st))
	cmd.AddCommand(newSchemaListCommand(st))
	cmd.AddCommand(newSchemaExportCommand(st))
	cmd.AddCommand(newSchemaImportCommand(st))
	return cmd
}

func newSchemaRegisterCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:     "register FILE...",
		Short:   "Register schema definition files",
		Long:    `register adds every definition in the given JSON or YAML files to the catalog, migrating schemas whose definition changed.`,
		Example: `vdb schema register schemas/notes.yaml schemas/todo.json`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var defs []*schema.Definition
			for _, path := range args {
				loaded, err := loader.LoadFile(path)
				if err != nil {
					return err
				}
				defs = append(defs, loaded...)
			}
			return withApp(cmd.Context(), st, func(app *bootstrap.App) error {
				return register(cmd, app, defs)
			})
		},
	}
}

func newSchemaImportCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Register every schema of an exported catalog bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			c, err := codec.ForFormat(strings.TrimPrefix(filepath.Ext(path), "."))
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			bundle, err := c.Parse(f)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			defs, err := bundle.Definitions()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			var user []*schema.Definition
			for _, def := range defs {
				if def.Namespace != catalog.Namespace {
					user = append(user, def)
				}
			}
			return withApp(cmd.Context(), st, func(app *bootstrap.App) error {
				return register(cmd, app, user)
			})
		},
	}
}

func register(cmd *cobra.Command, app *bootstrap.App, defs []*schema.Definition) error {
	for _, def := range defs {
		if err := app.AddSchema(cmd.Context(), def); err != nil {
			return fmt.Errorf("register %s: %w", def.FullName(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", def.FullName(), def.Fingerprint()[:12])
	}
	return nil
}

func newSchemaListCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalogued schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), st, func(app *bootstrap.App) error {
				records, err := app.Catalog.Records(cmd.Context())
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tNAMESPACE\tFIELDS\tFINGERPRINT")
				for _, rec := range records {
					def, err := schema.ParseString(rec.Definition)
					if err != nil {
						fmt.Fprintf(tw, "%s\t%s\t-\tunreadable: %v\n", rec.Name, rec.Namespace, err)
						continue
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", def.Name, def.Namespace, len(def.Fields), def.Fingerprint()[:12])
				}
				return tw.Flush()
			})
		},
	}
}

func newSchemaExportCommand(st *state) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the catalog as a portable bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := codec.ForFormat(format)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), st, func(app *bootstrap.App) error {
				records, err := app.Catalog.Records(cmd.Context())
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return c.Export(codec.NewBundle(records), w)
			})
		},
	}
	cmd.Flags().StringVarP(&format, FlagFormat, "f", "json", "bundle format: "+strings.Join(codec.Formats(), ", "))
	cmd.Flags().StringVarP(&output, FlagOutput, "o", "", "write to a file instead of stdout")
	return cmd
}

// withApp runs fn against a started application and closes it afterwards
func withApp(ctx context.Context, st *state, fn func(app *bootstrap.App) error) error {
	app, err := st.open(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
