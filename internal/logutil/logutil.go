// Package logutil holds small helpers shared by every package that logs.
package logutil

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey is the key used to tag log entries with their subsystem.
const SubsystemKey = "sys"

// Ensure returns l when non-nil, otherwise a logger that discards everything.
func Ensure(l pslog.Logger) pslog.Logger {
	if l != nil {
		return l
	}
	return pslog.NoopLogger()
}

// WithSubsystem attaches a dot-delimited subsystem tag to every log entry.
func WithSubsystem(l pslog.Logger, subsystem string) pslog.Logger {
	l = Ensure(l)
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return l
	}
	return l.With(SubsystemKey, subsystem)
}
