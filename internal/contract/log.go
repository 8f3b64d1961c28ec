package contract

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = NewLogger(os.Stderr, zerolog.InfoLevel)

// NewLogger returns a console logger writing to w at the given level.
func NewLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetLogLevel changes the level of the process logger.
func SetLogLevel(level zerolog.Level) {
	logger = logger.Level(level)
}

// Logger returns the process logger.
func Logger() zerolog.Logger {
	return logger
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	logger.Error().Err(err).Msg(msg)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	logger.Warn().Err(err).Msg(msg)
}
