// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogFileName is created inside the state directory
const LogFileName = "benpak.log"

var (
	fileMu  sync.Mutex
	logFile *os.File
)

// Options controls Setup
type Options struct {
	Verbosity int       // 0 warn, 1 info, 2 debug, 3+ trace
	Debug     bool      // forces at least debug level
	StateDir  string    // log file directory; empty disables the file
	Console   io.Writer // defaults to stderr
	NoColor   bool
}

// Setup configures the global logger and returns it. Console output is pretty
// printed; the log file, when it can be opened, receives JSON lines.
func Setup(opts Options) zerolog.Logger {
	closeLogFile()

	level := levelFor(opts.Verbosity)
	if opts.Debug && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		NoColor:    opts.NoColor,
	}}

	var (
		logPath string
		fileErr error
	)
	if opts.StateDir != "" {
		logPath = filepath.Join(opts.StateDir, LogFileName)
		var f *os.File
		f, fileErr = openLogFile(logPath)
		if fileErr == nil {
			writers = append(writers, f)
			fileMu.Lock()
			logFile = f
			fileMu.Unlock()
		}
	}

	logger := zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	log.Logger = logger

	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("path", logPath).Msg("failed to open log file, logging to console only")
	}
	logger.Debug().Str("level", level.String()).Str("log_file", logPath).Msg("logger initialized")
	return logger
}

// Close closes the log file opened by Setup. Call it once logging is done.
func Close() error {
	fileMu.Lock()
	f := logFile
	logFile = nil
	fileMu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func closeLogFile() {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// GetLogger returns the global logger tagged with a component name
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// LogOperationStart logs the start of an operation and returns a func that
// logs its duration
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().Str("operation", operation).Msg("operation started")
	return func() {
		logger.Debug().Str("operation", operation).Dur("duration", time.Since(start)).Msg("operation completed")
	}
}

func levelFor(verbosity int) zerolog.Level {
	switch verbosity {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	case 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
