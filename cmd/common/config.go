package common

import (
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v3"
)

// Config holds ambient defaults only: log level and HTTP tuning knobs.
// Credentials and the device id are never read from here — spec.md §6
// requires -ouser=,pass=,host= on every invocation regardless of what a
// config file supplies.
type Config struct {
	LogLevel       string `yaml:"log"`
	RequestTimeout int    `yaml:"requestTimeoutSeconds"`
}

// DefaultConfigPath returns the default config location for wd_bridge.
func DefaultConfigPath() string {
	confDir, err := os.UserConfigDir()
	if err != nil {
		log.Error().Err(err).Msg("could not determine configuration directory")
	}
	return filepath.Join(confDir, "wd_bridge/config.yml")
}

func defaultConfig() Config {
	return Config{
		LogLevel:       "info",
		RequestTimeout: 30,
	}
}

// LoadConfig reads an optional YAML defaults file and merges it over
// hardcoded defaults with mergo.Merge, exactly as the teacher's
// common.LoadConfig does. A missing or malformed file is not fatal — the
// mount proceeds on defaults, since this file only ever supplies ambient
// tuning, never credentials.
func LoadConfig(path string) *Config {
	defaults := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("configuration file not found, using defaults")
		return &defaults
	}

	config := &Config{}
	if err := yaml.Unmarshal(raw, config); err != nil {
		log.Error().Err(err).Str("path", path).Msg("could not parse configuration file, using defaults")
		return &defaults
	}
	if err := mergo.Merge(config, defaults); err != nil {
		log.Error().Err(err).Str("path", path).Msg("could not merge configuration file with defaults")
	}
	return config
}

// WriteConfig writes c to path, used by wd_bridge to persist the
// defaults-merged configuration back to disk on every run so a hand-edited
// config file only ever needs to carry the overrides it cares about.
func (c Config) WriteConfig(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		log.Error().Err(err).Msg("could not marshal config")
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		log.Error().Err(err).Msg("could not write config to disk")
		return err
	}
	return nil
}
