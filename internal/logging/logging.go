/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/friendsincode/confplanner/internal/logbuffer"
)

// Setup configures zerolog for the process. buf may be nil.
func Setup(environment string, buf *logbuffer.Buffer) zerolog.Logger {
	return SetupWithWriter(environment, os.Stdout, buf)
}

// SetupWithWriter configures zerolog to write to out. Development gets a
// human-readable console at debug level; every other environment gets JSON
// lines at info level. When buf is set every line is also kept there.
func SetupWithWriter(environment string, out io.Writer, buf *logbuffer.Buffer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	var writer io.Writer = out
	if environment == "development" {
		level = zerolog.DebugLevel
		writer = zerolog.ConsoleWriter{Out: out}
	}
	if buf != nil {
		writer = logbuffer.NewWriter(buf, writer)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
