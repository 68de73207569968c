package commands

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/FredAtLandMetrics/fissile/internal/counter"
)

func callCmd(a *app) *cobra.Command {
	var kwargs string
	cmd := &cobra.Command{
		Use:   "call [name] [json-args...]",
		Short: "Call a counter function in the configured execution mode",
		Long: `Call a counter function.  Each positional argument is a JSON value;
--kwargs takes a JSON object.  With --mode frontend the call is
forwarded to the backend, otherwise it runs against an empty local store.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := a.startCounter(counter.NewStore(0, 0), mux.NewRouter())
			if err != nil {
				return err
			}
			f, found := svc.Lookup(args[0])
			if !found {
				return errors.NotFoundf("function %q", args[0])
			}
			raw := make([]json.RawMessage, 0, len(args)-1)
			for _, arg := range args[1:] {
				if !json.Valid([]byte(arg)) {
					return errors.NotValidf("argument %q is not JSON", arg)
				}
				raw = append(raw, json.RawMessage(arg))
			}
			encoded, err := json.Marshal(raw)
			if err != nil {
				return errors.Trace(err)
			}
			result, err := f.CallJSON(cmd.Context(), string(encoded), kwargs)
			if err != nil {
				return errors.Trace(err)
			}
			out, err := json.Marshal(result)
			if err != nil {
				return errors.Trace(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&kwargs, "kwargs", "", "keyword arguments as a JSON object")
	return cmd
}
