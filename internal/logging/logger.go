// Package logging provides a small structured component logger used
// throughout the core instead of a package-level global.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger is the minimal logging surface every component depends on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// componentLogger prefixes every line with its component name and
// writes through the standard library logger.
type componentLogger struct {
	name string
	std  *log.Logger
}

// NewComponentLogger returns a Logger that tags every line with name.
func NewComponentLogger(name string) Logger {
	return &componentLogger{
		name: name,
		std:  log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (c *componentLogger) logf(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.std.Printf("%s [%s] %s", level, c.name, msg)
}

func (c *componentLogger) Debug(format string, args ...any) { c.logf("DEBUG", format, args...) }
func (c *componentLogger) Info(format string, args ...any)  { c.logf("INFO", format, args...) }
func (c *componentLogger) Warn(format string, args ...any)  { c.logf("WARN", format, args...) }
func (c *componentLogger) Error(format string, args ...any) { c.logf("ERROR", format, args...) }

// nopLogger discards everything. Returned by OrNop when no logger is
// supplied so callers never need a nil check.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop is a shared no-op logger.
var Nop Logger = nopLogger{}

// IsNil reports whether l is a nil interface value or a nil concrete
// pointer hiding behind the interface.
func IsNil(l Logger) bool {
	if l == nil {
		return true
	}
	if cl, ok := l.(*componentLogger); ok {
		return cl == nil
	}
	return false
}

// OrNop returns l, or Nop if l is nil.
func OrNop(l Logger) Logger {
	if IsNil(l) {
		return Nop
	}
	return l
}
