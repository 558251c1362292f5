// Package config assembles the server configuration from defaults, an
// optional YAML file, and environment variables, in that order of
// precedence (environment wins).
package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// dispatcher modes
const (
	// ModeWorkers runs a dedicated goroutine per connection.
	ModeWorkers = "workers"
	// ModeReactor serializes all line processing in a single event loop.
	ModeReactor = "reactor"
)

// busy policies, see session.Policy
const (
	PolicyStrict = "strict"
	PolicyShared = "shared"
)

type Config struct {
	// Addr is the TCP listen address.
	Addr string `env:"HULLD_ADDR" yaml:"addr"`
	// MaxClients caps concurrently served connections.
	MaxClients int `env:"HULLD_MAX_CLIENTS" yaml:"max_clients"`
	// Mode selects the dispatcher: workers or reactor.
	Mode string `env:"HULLD_MODE" yaml:"mode"`
	// Policy decides what non-owners may do during an upload.
	Policy string `env:"HULLD_POLICY" yaml:"policy"`
	// AreaThreshold enables hull-area crossing logs when positive.
	AreaThreshold float64 `env:"HULLD_AREA_THRESHOLD" yaml:"area_threshold"`
}

// Default matches the original deployment: port 9034, ten clients, a
// worker per connection, strict busy policy.
func Default() Config {
	return Config{
		Addr:          ":9034",
		MaxClients:    10,
		Mode:          ModeWorkers,
		Policy:        PolicyStrict,
		AreaThreshold: 100,
	}
}

// Load starts from defaults, overlays the YAML file at path when non-empty,
// and lets environment variables override both.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrap(err, "parse config file")
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse environment")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("listen address must not be empty")
	}
	if c.MaxClients <= 0 {
		return errors.New("max clients must be positive")
	}
	if c.Mode != ModeWorkers && c.Mode != ModeReactor {
		return errors.Errorf("unknown dispatcher mode %q", c.Mode)
	}
	if c.Policy != PolicyStrict && c.Policy != PolicyShared {
		return errors.Errorf("unknown busy policy %q", c.Policy)
	}
	return nil
}
