// Package logging builds the process logger and component sub-loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// output is the destination of the global logger. Setup retargets it, so
// component loggers built before a later Setup follow it.
var output = &switchWriter{w: consoleWriter()}

func init() {
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
}

// Component creates a new logger with a component identifier.
// Uses the "cmp" key for consistency with zerolog conventions.
func Component(name string) zerolog.Logger {
	return log.With().Str("cmp", name).Logger()
}

// New returns a logger that writes JSON to file. If file is empty, logs go to
// stderr through a console writer so they do not mix with command output.
//
// The level parameter can be one of: trace, debug, info, warn, error, disabled.
func New(level, file string) (zerolog.Logger, func(), error) {
	lvl, w, closer, err := open(level, file)
	if err != nil {
		return zerolog.Logger{}, closer, err
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl), closer, nil
}

func open(level, file string) (zerolog.Level, io.Writer, func(), error) {
	closer := func() {}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return lvl, nil, closer, err
	}
	if file == "" {
		return lvl, consoleWriter(), closer, nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return lvl, nil, closer, fmt.Errorf("create logs dir: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path from config
	if err != nil {
		return lvl, nil, closer, err
	}
	return lvl, f, func() { _ = f.Close() }, nil
}

// Setup points the global logger at file (stderr when empty) with the given
// level. Loggers from Component follow every later Setup; the returned
// function closes the file and must only run once it is no longer the target.
func Setup(level, file string) (func(), error) {
	lvl, w, closer, err := open(level, file)
	if err != nil {
		return closer, err
	}
	output.set(w)
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(lvl)
	return closer, nil
}
