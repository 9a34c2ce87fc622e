// Package obslog is the structured logger both CLIs and the engine's
// diagnostic hooks share: a thin wrapper over charmbracelet/log configured
// the same way across cmd/organ-prep and cmd/organ-play: a New constructor,
// re-exported Logger/Level types, and a package-level Default logger (with
// SetDefault) for hooks that have no other owner, such as the
// release-alignment table's fabs-guard observer. It has no helpers of its
// own for checking a level before a hook builds its log arguments.
//
// Grounded on the wider pack's only charmbracelet/log user
// (doismellburning-samoyed's go.mod carries the dependency even though its
// own code mostly logs via cgo's log.h); this package is this repo's first
// direct user of it.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Logger is the shared structured logger type; re-exported so callers don't
// need to import charmbracelet/log directly.
type Logger = log.Logger

// Level re-exports charmbracelet/log's severity type and levels, so callers
// parsing a -log-level flag don't need to import charmbracelet/log directly.
type Level = log.Level

const (
	DebugLevel = log.DebugLevel
	InfoLevel  = log.InfoLevel
	WarnLevel  = log.WarnLevel
	ErrorLevel = log.ErrorLevel
)

// Options configures New.
type Options struct {
	// Level is the minimum severity that will be emitted. Defaults to
	// log.InfoLevel.
	Level log.Level
	// Output is where log lines are written. Defaults to os.Stderr.
	Output io.Writer
	// Prefix tags every line with a component name, e.g. "organ-prep" or
	// "organ-play".
	Prefix string
	// ReportTimestamp controls whether lines carry a wall-clock timestamp;
	// off by default. Neither CLI turns it on.
	ReportTimestamp bool
}

// New builds a Logger configured for this repo's two CLI entry points and
// the engine's internal diagnostic hooks.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := opts.Level
	if level == 0 {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(out, log.Options{
		Prefix:          opts.Prefix,
		Level:           level,
		ReportTimestamp: opts.ReportTimestamp,
		TimeFormat:      time.Kitchen,
	})
	return logger
}

// Default is a package-level logger used by hooks that have no other
// obvious owner (e.g. the onFabsGuard callback sampleprep.BuildAlignment
// passes to reltable.Build, which logs at Debug level). CLIs may replace it with a
// differently-configured Logger via SetDefault.
var defaultLogger = New(Options{Prefix: "organsampler"})

// SetDefault replaces the package-level Default logger.
func SetDefault(l *Logger) { defaultLogger = l }

// Default returns the current package-level logger.
func Default() *Logger { return defaultLogger }
