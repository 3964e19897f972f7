// Package logging builds the zerolog logger shared by every command.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger on stdout, or a human readable console logger
// when env is "dev". An unknown level falls back to info.
func New(env, level string) zerolog.Logger {
	return NewTo(os.Stdout, env, level)
}

// NewTo is New writing to w.
func NewTo(w io.Writer, env, level string) zerolog.Logger {
	out := w
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
