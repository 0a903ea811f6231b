// Package obslog builds the process-wide zap logger. It is the single
// place zap.NewProduction/zap.NewDevelopment is called; every other
// package accepts a *zap.Logger field and defaults to zap.NewNop() when
// none is supplied.
package obslog

import "go.uber.org/zap"

// Mode selects the logger's encoding and default level.
type Mode int

const (
	// ModeProduction emits structured JSON at Info and above.
	ModeProduction Mode = iota
	// ModeDevelopment emits human-readable console output at Debug and above.
	ModeDevelopment
)

// New builds a logger for the given mode. Errors constructing the
// underlying zap core (e.g. a broken sink) are folded into a no-op
// logger rather than propagated, since logging setup must never be what
// prevents the runtime from starting.
func New(mode Mode) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	switch mode {
	case ModeDevelopment:
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NopIfNil returns logger unchanged, or a no-op logger if logger is nil.
// Subsystems call this once at construction so call sites never need a
// nil check before logging.
func NopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
