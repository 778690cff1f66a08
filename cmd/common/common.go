// Package common holds the bits shared by both binaries: version string and
// log-level helpers.
package common

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

var commit string

// Version returns the current version string.
func Version() string {
	clen := 0
	if len(commit) > 7 {
		clen = 8
	}
	return fmt.Sprintf("v%s %s", version, commit[:clen])
}

// StringToLevel converts a string to a zerolog.Level, defaulting to info on
// a bad input rather than failing the whole mount over a typo'd flag.
func StringToLevel(input string) zerolog.Level {
	level, err := zerolog.ParseLevel(input)
	if err != nil {
		log.Error().Err(err).Msg("could not parse log level, defaulting to \"info\"")
		return zerolog.InfoLevel
	}
	return level
}

// LogLevels returns the available logging levels, for usage text.
func LogLevels() []string {
	return []string{"trace", "debug", "info", "warn", "error", "fatal"}
}
