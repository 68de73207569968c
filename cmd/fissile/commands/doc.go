// Package commands defines the fissile CLI.
//
// Commands
//
//   - serve    Serve the counter functions (and /metrics) over HTTP
//   - call     Call a counter function in the configured execution mode
//   - routes   List the registered routes
//
// # Implementation
//
// The root command loads fissile.Settings from the environment, applies
// flag overrides and configures loggo before any subcommand runs.  Each
// subcommand then registers the counter functions with a fresh service
// and starts it with those settings.
package commands
