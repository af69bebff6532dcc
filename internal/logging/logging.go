// Package logging sets up the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the root logger. Zero values fall back to
// info-level console output on stdout.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // console or json
	Output string // stdout, stderr or file
	File   string // log file path when Output is "file"
}

// Logger is the root logger configured by Init.
var Logger zerolog.Logger

// Init configures the global logger. Safe to call once at startup.
func Init(opts Options) error {
	if opts.Level == "" {
		opts.Level = "info"
	}
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer
	switch strings.ToLower(opts.Output) {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	case "file":
		if opts.File == "" {
			return fmt.Errorf("log output is file but no file path given")
		}
		output = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
	default:
		return fmt.Errorf("unknown log output %q", opts.Output)
	}

	if strings.ToLower(opts.Format) != "json" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	Logger = zerolog.New(output).With().Timestamp().Logger()
	log.Logger = Logger

	Logger.Info().
		Str("level", opts.Level).
		Str("format", opts.Format).
		Msg("logger initialized")

	return nil
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("comp", name).Logger()
}
