// Package logging is a one-line leveled wrapper over the standard
// library logger, matching the teacher corpus's own convention of
// emoji-prefixed log.Printf call sites rather than a structured logger.
package logging

import "log"

// Logger scopes log lines with a package prefix, e.g. "ratchet: ".
type Logger struct {
	prefix string
}

// New returns a Logger that prefixes every line with name.
func New(name string) *Logger {
	return &Logger{prefix: name + ": "}
}

func (l *Logger) Infof(format string, args ...any) {
	log.Printf("ℹ️  "+l.prefix+format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	log.Printf("⚠️  "+l.prefix+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	log.Printf("❌ "+l.prefix+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	log.Printf("🔍 "+l.prefix+format, args...)
}
