package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vdb/internal/core/bootstrap"
)

func newReposCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "repos",
		Short: "List registered repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), st, func(app *bootstrap.App) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSTRATEGY\tPROXIED\tBUILT")
				for _, c := range app.Registry.Configs() {
					_, proxied := app.Proxies.Lookup(c.Name)
					fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", c.Name, c.Strategy(), proxied, app.Registry.Built(c.Name))
				}
				return tw.Flush()
			})
		},
	}
}
