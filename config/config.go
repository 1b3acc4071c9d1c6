// Package config handles configuration loading for the gdbus cmd/
// example programs. Library packages (bus, variant, fmtstr, introspect)
// never read files or environment themselves — they take explicit Go
// options from the caller, matching how the teacher keeps its
// library-shaped internal packages config-struct-driven rather than
// file-driven.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order: an
// explicit path (from -config) is checked first by FindConfig, then
// ./gdbus.yaml, ~/.config/gdbus/gdbus.yaml, /etc/gdbus/gdbus.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"gdbus.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "gdbus", "gdbus.yaml"))
	}

	paths = append(paths, "/etc/gdbus/gdbus.yaml")
	return paths
}

// searchPathsFunc is indirected through a var so tests can substitute
// a set of paths confined to a temp directory, rather than risk
// matching a real gdbus.yaml on the developer's machine.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty it must
// exist. Otherwise DefaultSearchPaths is searched in order and the
// first existing path wins. Returns an error if nothing is found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds configuration for the cmd/gdbus-send and
// cmd/gdbus-monitor example programs.
type Config struct {
	// BusAddress overrides bus-type-to-address resolution (spec.md
	// §6 "Address syntax"). Empty means resolve from the environment
	// (DBUS_SESSION_BUS_ADDRESS etc.) the way bus.ResolveAddress does.
	// Neither cmd/gdbus-send nor cmd/gdbus-monitor reads this field;
	// both always resolve the address from the environment.
	BusAddress string `yaml:"bus_address"`
	// Peer, if set, is a D-Bus address (e.g. "unix:path=/tmp/gdbus-peer")
	// the example programs connect to directly with bus.DialPeer instead
	// of going through a bus daemon (spec.md §4.3 peer-to-peer use).
	Peer string `yaml:"peer"`
	// Listen is the address cmd/gdbus-monitor's "-serve" mode binds a
	// bus.Server to for the peer-to-peer demo (spec §8 scenario 5).
	Listen string `yaml:"listen"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Timeout bounds invoke_method calls made by cmd/gdbus-send, in
	// seconds. applyDefaults turns zero into 25 seconds.
	TimeoutSec int `yaml:"timeout_sec"`
}

// applyDefaults fills zero-value fields with sensible defaults so
// callers can read any field without additional checks.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.TimeoutSec == 0 {
		c.TimeoutSec = 25
	}
}

// Validate checks internal consistency. Runs after applyDefaults.
func (c *Config) Validate() error {
	if c.TimeoutSec < 0 {
		return fmt.Errorf("timeout_sec %d must not be negative", c.TimeoutSec)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Default returns a default configuration: session bus resolved from
// the environment, info logging, a 25 second call timeout.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
