package commands

import (
	"fmt"

	"github.com/gorilla/mux"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/FredAtLandMetrics/fissile/internal/counter"
)

func routesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the registered routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := a.startCounter(counter.NewStore(0, 0), mux.NewRouter())
			if err != nil {
				return err
			}
			table := uitable.New()
			table.AddRow("NAME", "METHOD", "ROUTE")
			for _, r := range svc.Routes() {
				table.AddRow(r.Name, r.Method, r.Pattern)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
