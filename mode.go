package fissile

import (
	"strings"
)

// Mode selects where a Func executes when it is called as a function.
// Only ModeFrontend forwards; any other value runs calls in-process.
type Mode string

const (
	// ModeNoSplit runs everything in one process.  It is the default.
	ModeNoSplit Mode = "nosplit"
	// ModeBackend runs calls in-process and serves the views that
	// frontends forward to.
	ModeBackend Mode = "backend"
	// ModeFrontend forwards every call to the backend.
	ModeFrontend Mode = "frontend"
)

// ParseMode converts a FISSILE_EXEC_MODE value to a Mode.  The empty
// string is ModeNoSplit.  Values that name none of the modes are kept
// as they are and run in-process.
func ParseMode(s string) Mode {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "", "nosplit", "no-split":
		return ModeNoSplit
	case "backend":
		return ModeBackend
	case "frontend":
		return ModeFrontend
	}
	return Mode(trimmed)
}

// UnmarshalText implements encoding.TextUnmarshaler so that modes can be
// read straight from the environment.
func (m *Mode) UnmarshalText(text []byte) error {
	*m = ParseMode(string(text))
	return nil
}

// Known reports whether m is one of the named modes.
func (m Mode) Known() bool {
	switch m {
	case ModeNoSplit, ModeBackend, ModeFrontend, "":
		return true
	}
	return false
}

// Forwards reports whether calls made in this mode go to the backend.
func (m Mode) Forwards() bool {
	return m == ModeFrontend
}

func (m Mode) String() string {
	if m == "" {
		return string(ModeNoSplit)
	}
	return string(m)
}
