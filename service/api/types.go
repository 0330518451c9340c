// Package api holds the types exchanged between the memory inspection
// engine and the backend session layer.
package api

import "time"

// SessionStatus enumerates the lifecycle states of a debug session.
type SessionStatus string

const (
	SessionCreated    SessionStatus = "created"
	SessionConnecting SessionStatus = "connecting"
	SessionConnected  SessionStatus = "connected"
	SessionRunning    SessionStatus = "running"
	SessionPaused     SessionStatus = "paused"
	SessionFinished   SessionStatus = "finished"
	SessionErrored    SessionStatus = "error"
)

// Terminal reports whether a session in this status can no longer deliver
// replies. Views reset their volatile state when their session becomes
// terminal.
func (s SessionStatus) Terminal() bool {
	return s == SessionFinished || s == SessionErrored
}

// Session describes one debug session as presented to the UI layer.
type Session struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	ServerURL     string        `json:"server_url"`
	LaunchCommand string        `json:"launch_command"`
	Status        SessionStatus `json:"status"`
	// StatusDetail carries the error message when Status is "error".
	StatusDetail string    `json:"status_detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Module describes one loaded module of the debuggee.
type Module struct {
	Name string `json:"name"`
	Base uint64 `json:"base"`
	Size uint64 `json:"size"`
}

// Thread describes one thread of the debuggee.
type Thread struct {
	ID        uint32 `json:"id"`
	StartAddr uint64 `json:"start_addr"`
}

// MemoryReadReply is the asynchronous reply to a memory read request. Err is
// set instead of Data when the read failed; a reply that would carry zero
// bytes and no error is converted to an error by the transport before it is
// delivered.
type MemoryReadReply struct {
	SessionID     string `json:"session_id"`
	Addr          uint64 `json:"addr"`
	RequestedSize int    `json:"requested_size"`
	Data          []byte `json:"data,omitempty"`
	Err           string `json:"error,omitempty"`
}

// Partial reports whether the read returned fewer bytes than requested.
func (r *MemoryReadReply) Partial() bool {
	return r.Err == "" && len(r.Data) > 0 && len(r.Data) < r.RequestedSize
}

// MemoryWriteReply is the asynchronous reply to a memory write request.
type MemoryWriteReply struct {
	SessionID    string `json:"session_id"`
	Addr         uint64 `json:"addr"`
	BytesWritten int    `json:"bytes_written"`
	Err          string `json:"error,omitempty"`
}

// LogEntry is one line of the session layer's UI log ring.
type LogEntry struct {
	When      time.Time `json:"when"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
}
