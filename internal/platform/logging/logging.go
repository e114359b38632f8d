// Package logging bootstraps the rotating file logger shared by every
// component.
package logging

import (
	"fmt"
	"os"

	"github.com/bitmark-inc/logger"
)

const (
	defaultFileSize  = 1048576
	defaultFileCount = 10
)

// Options configures the process-wide logger.
type Options struct {
	Directory string
	File      string
	Level     string
	Console   bool
}

// Setup initialises the global logger. Call Finalise on shutdown.
func Setup(opts Options) error {
	if opts.Directory == "" {
		opts.Directory = "log"
	}
	if opts.File == "" {
		opts.File = "xinventories.log"
	}
	if opts.Level == "" {
		opts.Level = "info"
	}
	if err := os.MkdirAll(opts.Directory, 0o700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	cfg := logger.Configuration{
		Directory: opts.Directory,
		File:      opts.File,
		Size:      defaultFileSize,
		Count:     defaultFileCount,
		Console:   opts.Console,
		Levels: map[string]string{
			logger.DefaultTag: opts.Level,
		},
	}
	if err := logger.Initialise(cfg); err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	return nil
}

// Finalise flushes and closes the global logger.
func Finalise() {
	logger.Finalise()
}
