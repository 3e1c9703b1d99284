// Package rtlog is the runtime's structured-logging facade: a thin
// wrapper over github.com/joeycumines/logiface backed by
// github.com/joeycumines/izerolog, the way
// logiface-zerolog/zerolog.go wires the same two libraries together
// for the teacher's own services.
package rtlog

import (
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the runtime-wide structured logger type, parameterized on
// izerolog's Event implementation.
type Logger = logiface.Logger[*izerolog.Event]

// New builds a Logger writing JSON lines to w (os.Stderr if nil) at or
// above level.
func New(w *os.File, level zerolog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logiface.New[*izerolog.Event](izerolog.WithZerolog(zl))
}

// Nop returns a Logger that discards everything, for tests and
// contexts with no configured sink.
func Nop() *Logger {
	zl := zerolog.Nop()
	return logiface.New[*izerolog.Event](izerolog.WithZerolog(zl))
}

// Component returns a Logger derived from l that stamps every
// subsequent record with a "component" field set to name, the way
// each of the teacher's service boundaries carries its own sub-logger
// rather than threading a bare string through every call site.
func Component(l *Logger, name string) *Logger {
	return l.Clone().Str("component", name).Logger()
}
