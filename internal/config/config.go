// Package config loads engine and logging settings from a TOML file
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"peephole/internal/peephole"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the configuration file the tools look for by default
const FileName = "peephole.toml"

// ErrInvalid is returned for a configuration that decodes but cannot be used
var ErrInvalid = errors.New("invalid configuration")

// Config is the decoded configuration file
type Config struct {
	Engine Engine `toml:"engine"`
	Log    Log    `toml:"log"`
}

// Engine mirrors peephole.Options
type Engine struct {
	// Window enables matching of adjacent instruction pairs
	Window bool `toml:"window"`
	// DisabledRules names pattern table rules and window idioms to skip
	DisabledRules []string `toml:"disabled_rules"`
	// MaxSteps bounds worklist pops per function; 0 is unlimited
	MaxSteps int `toml:"max_steps"`
}

// Log configures commonlog
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{Engine: Engine{Window: true}}
}

// Load reads and validates a configuration file. Keys missing from the file
// keep their default values; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration text
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", ErrInvalid, strict.String())
		}
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks rule names against the pattern table and the ranges of
// numeric settings.
func (c *Config) Validate() error {
	known := make(map[string]bool)
	for _, name := range peephole.RuleNames() {
		known[name] = true
	}
	for _, name := range c.Engine.DisabledRules {
		if !known[name] {
			return fmt.Errorf("%w: unknown rule %q", ErrInvalid, name)
		}
	}
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("%w: max_steps must not be negative", ErrInvalid)
	}
	if c.Log.Verbosity < -4 || c.Log.Verbosity > 2 {
		return fmt.Errorf("%w: verbosity %d out of range", ErrInvalid, c.Log.Verbosity)
	}
	return nil
}

// EngineOptions converts the engine section into engine options
func (c *Config) EngineOptions() []peephole.Option {
	opts := []peephole.Option{
		peephole.WithWindow(c.Engine.Window),
		peephole.WithMaxSteps(c.Engine.MaxSteps),
	}
	if len(c.Engine.DisabledRules) > 0 {
		opts = append(opts, peephole.WithDisabledRules(c.Engine.DisabledRules...))
	}
	return opts
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
