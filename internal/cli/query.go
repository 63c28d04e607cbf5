package cli

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vdb/internal/core/bootstrap"
	vdberrors "vdb/internal/errors"
	"vdb/internal/identifier"
	"vdb/internal/proxy"
	"vdb/internal/repository"
)

const (
	FlagFields = "fields"
	FlagWhere  = "where"
	FlagSort   = "sort"
	FlagLimit  = "limit"
)

// nullText marks null cells in query output
const nullText = "NULL"

func newQueryCommand(st *state) *cobra.Command {
	var (
		fields []string
		where  map[string]string
		order  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "query URI",
		Short: "Print the rows addressed by an identifier",
		Example: `vdb query vdb://notes/master/note --fields title,created --sort "created DESC"
vdb query vdb://vdb/settings/master/entry --where key=theme`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := parseURI(args[0])
			if err != nil {
				return err
			}
			q := repository.Query{Projection: fields, SortOrder: order}
			q.Selection, q.Args = equalities(where)

			return withApp(cmd.Context(), st, func(app *bootstrap.App) error {
				pager, err := open(cmd.Context(), app, u, q)
				if err != nil {
					return err
				}
				defer pager.Close()

				shown, err := printRows(cmd, app, pager, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s of %s rows\n", humanize.Comma(int64(shown)), humanize.Comma(int64(pager.Count())))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&fields, FlagFields, nil, "columns to print (default: all)")
	cmd.Flags().StringToStringVar(&where, FlagWhere, nil, "equality filters as column=value")
	cmd.Flags().StringVar(&order, FlagSort, "", "sort order, e.g. \"title DESC\"")
	cmd.Flags().IntVar(&limit, FlagLimit, 0, "stop after this many rows (0 prints all)")
	return cmd
}

func newTypeCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "type URI",
		Short: "Print the type descriptor of an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := parseURI(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), st, func(app *bootstrap.App) error {
				var typ string
				if u.Host == identifier.Authority {
					typ, err = app.Registry.Type(cmd.Context(), u)
				} else {
					p, perr := lookupProxy(app, u)
					if perr != nil {
						return perr
					}
					typ, err = p.TypeOf(cmd.Context(), u)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), typ)
				return nil
			})
		},
	}
}

func parseURI(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, vdberrors.Wrap(vdberrors.CodeInvalidIdentifier, "parse "+raw, err)
	}
	if _, err := identifier.Parse(u); err != nil {
		return nil, err
	}
	return u, nil
}

// open queries the internal authority through the registry and every other
// authority through its proxy
func open(ctx context.Context, app *bootstrap.App, u *url.URL, q repository.Query) (*proxy.Pager, error) {
	if u.Host == identifier.Authority {
		rs, err := app.Registry.Query(ctx, u, q)
		if err != nil {
			return nil, err
		}
		return proxy.NewPager(rs, app.Logger), nil
	}
	p, err := lookupProxy(app, u)
	if err != nil {
		return nil, err
	}
	return p.Query(ctx, u, q)
}

func lookupProxy(app *bootstrap.App, u *url.URL) (*proxy.Proxy, error) {
	p, ok := app.Proxies.Lookup(u.Host)
	if !ok {
		return nil, vdberrors.WithMetadata(vdberrors.CodeUnregisteredRepository,
			fmt.Sprintf("no proxy serves authority %q", u.Host),
			map[string]string{"authority": u.Host})
	}
	return p, nil
}

// equalities turns column=value pairs into a selection, columns in lexical
// order
func equalities(where map[string]string) (string, []string) {
	columns := make([]string, 0, len(where))
	for col := range where {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	clauses := make([]string, 0, len(columns))
	args := make([]string, 0, len(columns))
	for _, col := range columns {
		clauses = append(clauses, col+" = ?")
		args = append(args, where[col])
	}
	return strings.Join(clauses, " AND "), args
}

// printRows pages through pager one window at a time
func printRows(cmd *cobra.Command, app *bootstrap.App, pager *proxy.Pager, limit int) (int, error) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(pager.Columns(), "\t"))

	window := proxy.NewWindow(app.Config.Window.Rows, app.Config.Window.Bytes.Int())
	shown := 0
	for pos := 0; pos < pager.Count(); {
		n := pager.FillWindow(pos, window)
		if n == 0 {
			return shown, fmt.Errorf("row %d does not fit a %s window", pos, app.Config.Window.Bytes)
		}
		for _, row := range window.Rows() {
			if limit > 0 && shown >= limit {
				return shown, tw.Flush()
			}
			cells := make([]string, len(row))
			for i, f := range row {
				if f.Null {
					cells[i] = nullText
				} else {
					cells[i] = f.Value
				}
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
			shown++
		}
		pos += n
	}
	return shown, tw.Flush()
}
