package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/filter"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/planner"
)

func newExplainCmd() *cobra.Command {
	var (
		dialect, kind, filterJSON, order string
		limit, offset                    int
		count                            bool
	)

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the SQL a filter compiles to",
		Example: `  catalogq explain --kind records --filter '{"field":"title","op":"contains","value":"ceo"}' --order created_at:desc
  catalogq explain --dialect sqlite --kind groups --filter '{"field":"employee_count","op":"range","value":{"min":10}}' --count`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := sqldb.ForDriver(dialect)
			if err != nil {
				return err //nolint:wrapcheck // message already names the flag value
			}
			k, err := domain.ParseKind(kind)
			if err != nil {
				return fmt.Errorf("--kind: %w", err)
			}
			var node filter.Node
			if filterJSON != "" {
				if node, err = filter.Decode([]byte(filterJSON)); err != nil {
					return fmt.Errorf("--filter: %w", err)
				}
			}
			o, err := query.ParseOrder(order)
			if err != nil {
				return fmt.Errorf("--order: %w", err)
			}

			p := planner.New(d)
			var plan planner.Plan
			if count {
				plan, err = p.Count(k, node)
			} else {
				plan, err = p.Select(k, node, o, limit, offset)
			}
			if err != nil {
				return fmt.Errorf("compile: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "-- dialect: %s\n%s;\n", d.Name(), plan.SQL)
			for i, a := range plan.Args {
				fmt.Fprintf(out, "-- $%d = %#v\n", i+1, a)
			}
			if tables := plan.Refs.Tables(); len(tables) > 0 {
				fmt.Fprintf(out, "-- related tables: %s\n", strings.Join(tables, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", sqldb.DriverPostgres, "SQL dialect: postgres or sqlite")
	cmd.Flags().StringVar(&kind, "kind", string(domain.KindRecord), "entity kind: records or groups")
	cmd.Flags().StringVar(&filterJSON, "filter", "", "filter tree as JSON")
	cmd.Flags().StringVar(&order, "order", "", "sort as field:asc|desc")
	cmd.Flags().IntVar(&limit, "limit", 25, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	cmd.Flags().BoolVar(&count, "count", false, "compile the count statement instead of the key query")
	return cmd
}
