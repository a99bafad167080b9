// Package auditlog provides the append-only collection log shared by all
// collectors. It is the only structure in the engine that is mutated from
// more than one goroutine, so all appends go through a single mutex.
package auditlog

import (
	"fmt"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// String returns the level name as it appears in the output contract.
func (l Level) String() string {
	names := [...]string{"INFO", "WARN", "ERROR"}
	if int(l) < len(names) {
		return names[l]
	}
	return "UNKNOWN"
}

// Entry is a single collection log record. Ordering is emission order.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Component string
	Message   string
}

// Log is an append-only, synchronized collection log. The zero value is not
// usable; create with New.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// New creates an empty log using the system clock (UTC).
func New() *Log {
	return &Log{now: func() time.Time { return time.Now().UTC() }}
}

// NewWithClock creates a log with a caller-supplied clock, for tests.
func NewWithClock(clock func() time.Time) *Log {
	return &Log{now: clock}
}

func (l *Log) append(level Level, component, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		Timestamp: l.now(),
		Level:     level,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Infof appends an INFO entry attributed to component.
func (l *Log) Infof(component, format string, args ...any) {
	l.append(LevelInfo, component, format, args...)
}

// Warnf appends a WARN entry attributed to component.
func (l *Log) Warnf(component, format string, args ...any) {
	l.append(LevelWarn, component, format, args...)
}

// Errorf appends an ERROR entry attributed to component.
func (l *Log) Errorf(component, format string, args ...any) {
	l.append(LevelError, component, format, args...)
}

// Entries returns a copy of all entries in emission order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries recorded so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
