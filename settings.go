package fissile

import (
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/juju/errors"
)

// Settings control how the Funcs of a service execute.  They are
// normally read from the environment with LoadSettings.
type Settings struct {
	ExecMode      Mode          `env:"FISSILE_EXEC_MODE"       envDefault:"nosplit"`
	UseTestClient bool          `env:"FISSILE_USE_TEST_CLIENT"`
	BackendURL    string        `env:"FISSILE_BACKEND_URL"     envDefault:"http://localhost:8000"`
	Timeout       time.Duration `env:"FISSILE_TIMEOUT"         envDefault:"30s"`
	RetryAttempts int           `env:"FISSILE_RETRY_ATTEMPTS"  envDefault:"1"`
	RetryDelay    time.Duration `env:"FISSILE_RETRY_DELAY"     envDefault:"100ms"`
	ListenAddr    string        `env:"FISSILE_LISTEN_ADDR"     envDefault:":8000"`
	LogConfig     string        `env:"FISSILE_LOG_CONFIG"      envDefault:"<root>=INFO"`
}

// LoadSettings reads Settings from the process environment.
func LoadSettings() (Settings, error) {
	return loadSettings(env.Options{})
}

// LoadSettingsFromMap reads Settings from environ instead of the process
// environment.  Variables missing from environ take their defaults.
func LoadSettingsFromMap(environ map[string]string) (Settings, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return loadSettings(env.Options{Environment: environ})
}

func loadSettings(opts env.Options) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return Settings{}, errors.Annotate(err, "parse env")
	}
	if err := s.Validate(); err != nil {
		return Settings{}, errors.Trace(err)
	}
	return s, nil
}

// Validate checks that the settings can be used to start a service.
func (s Settings) Validate() error {
	if s.ExecMode.Forwards() && !s.UseTestClient {
		u, err := url.Parse(s.BackendURL)
		if err != nil {
			return errors.NewNotValid(err, "backend url")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.NotValidf("backend url %q", s.BackendURL)
		}
	}
	if s.Timeout < 0 {
		return errors.NotValidf("negative timeout %v", s.Timeout)
	}
	if s.RetryAttempts < 0 {
		return errors.NotValidf("negative retry attempts %d", s.RetryAttempts)
	}
	if s.RetryDelay < 0 {
		return errors.NotValidf("negative retry delay %v", s.RetryDelay)
	}
	return nil
}
