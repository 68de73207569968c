package commands

import (
	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/spf13/cobra"

	"github.com/FredAtLandMetrics/fissile"
	"github.com/FredAtLandMetrics/fissile/internal/counter"
)

var logger = loggo.GetLogger("fissile.cmd")

// app is the state shared by the subcommands of one invocation.
type app struct {
	settings fissile.Settings
	environ  map[string]string // nil reads the process environment

	mode       string
	backendURL string
	testClient bool
	logConfig  string
}

// Execute runs the fissile CLI with the process arguments.
func Execute() error {
	return newRootCmd(nil).Execute()
}

func newRootCmd(environ map[string]string) *cobra.Command {
	a := &app{environ: environ}
	root := &cobra.Command{
		Use:          "fissile",
		Short:        "Serve and call functions split between a frontend and a backend",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadSettings(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.mode, "mode", "", "execution mode: frontend, backend or nosplit (default $FISSILE_EXEC_MODE)")
	root.PersistentFlags().StringVar(&a.backendURL, "backend", "", "backend base URL (default $FISSILE_BACKEND_URL)")
	root.PersistentFlags().BoolVar(&a.testClient, "test-client", false, "forward calls in-process instead of over HTTP")
	root.PersistentFlags().StringVar(&a.logConfig, "log-config", "", "loggo configuration (default $FISSILE_LOG_CONFIG)")

	root.AddCommand(serveCmd(a), callCmd(a), routesCmd(a))
	return root
}

func (a *app) loadSettings(cmd *cobra.Command) error {
	var settings fissile.Settings
	var err error
	if a.environ == nil {
		settings, err = fissile.LoadSettings()
	} else {
		settings, err = fissile.LoadSettingsFromMap(a.environ)
	}
	if err != nil {
		return errors.Trace(err)
	}
	if a.mode != "" {
		settings.ExecMode = fissile.ParseMode(a.mode)
	}
	if a.backendURL != "" {
		settings.BackendURL = a.backendURL
	}
	if cmd.Flags().Changed("test-client") {
		settings.UseTestClient = a.testClient
	}
	if a.logConfig != "" {
		settings.LogConfig = a.logConfig
	}
	if err := settings.Validate(); err != nil {
		return errors.Trace(err)
	}
	if err := loggo.ConfigureLoggers(settings.LogConfig); err != nil {
		return errors.Annotate(err, "configuring loggers")
	}
	a.settings = settings
	logger.Debugf("settings: mode=%s backend=%s test-client=%v", settings.ExecMode, settings.BackendURL, settings.UseTestClient)
	return nil
}

// startCounter registers the counter functions on a new service bound
// to router and starts it.
func (a *app) startCounter(store *counter.Store, router *mux.Router) (*fissile.ServiceWithMux, *counter.Funcs, error) {
	reg := fissile.PreRegisterServiceWithMux("counter")
	funcs := counter.Register(reg, store)
	svc, err := reg.Start(a.settings, router)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return svc, funcs, nil
}
