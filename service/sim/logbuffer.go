package sim

import (
	"fmt"
	"time"

	"github.com/go-memview/memview/service/api"
)

// maxLogEntries bounds the UI log ring; the oldest entries are dropped.
const maxLogEntries = 1000

// LogBuffer is the bounded log ring the session layer exposes to the UI.
type LogBuffer struct {
	entries []api.LogEntry
}

// NewLogBuffer returns an empty log ring.
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{}
}

func (l *LogBuffer) append(level, sessionID, format string, args ...interface{}) {
	l.entries = append(l.entries, api.LogEntry{
		When:      time.Now(),
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
		SessionID: sessionID,
	})
	if len(l.entries) > maxLogEntries {
		l.entries = l.entries[len(l.entries)-maxLogEntries:]
	}
}

// Infof appends an info entry scoped to sessionID (may be empty).
func (l *LogBuffer) Infof(sessionID, format string, args ...interface{}) {
	l.append("info", sessionID, format, args...)
}

// Errorf appends an error entry scoped to sessionID (may be empty).
func (l *LogBuffer) Errorf(sessionID, format string, args ...interface{}) {
	l.append("error", sessionID, format, args...)
}

// All returns the retained entries, oldest first.
func (l *LogBuffer) All() []api.LogEntry {
	out := make([]api.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear drops all entries.
func (l *LogBuffer) Clear() {
	l.entries = nil
}
