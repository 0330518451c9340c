package sim

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cosiner/argv"

	"github.com/go-memview/memview/pkg/logflags"
	"github.com/go-memview/memview/pkg/memview/arch"
	"github.com/go-memview/memview/service/api"
)

// ErrSessionExists is returned when a session with the same server URL and
// launch command already exists.
var ErrSessionExists = fmt.Errorf("session already exists")

// SessionNotFoundError is returned for operations on unknown session ids.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.ID)
}

// InvalidStateError is returned when an operation is not allowed in the
// session's current status.
type InvalidStateError struct {
	Op     string
	Status api.SessionStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a session in state %q", e.Op, e.Status)
}

// Session couples the UI-facing session record with its simulated backend.
type Session struct {
	api.Session
	Backend *Backend
}

// Manager owns the set of debug sessions and the UI log ring.
type Manager struct {
	sessions map[string]*Session
	order    []string
	logs     *LogBuffer
	cpu      arch.CPU
	lastID   int64
	log      logflags.Logger
}

// NewManager returns an empty session manager simulating the given
// architecture.
func NewManager(cpu arch.CPU) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logs:     NewLogBuffer(),
		cpu:      cpu,
		log:      logflags.SimLogger(),
	}
}

// Logs returns the UI log ring.
func (m *Manager) Logs() *LogBuffer {
	return m.logs
}

func (m *Manager) nextID() string {
	id := time.Now().UnixNano() / int64(time.Millisecond)
	if id <= m.lastID {
		id = m.lastID + 1
	}
	m.lastID = id
	return fmt.Sprintf("session_%d", id)
}

func (m *Manager) duplicate(excludeID, serverURL, launchCommand string) bool {
	for id, s := range m.sessions {
		if id != excludeID && s.ServerURL == serverURL && s.LaunchCommand == launchCommand {
			return true
		}
	}
	return false
}

// Create registers a new session in the created state.
func (m *Manager) Create(name, serverURL, launchCommand string) (string, error) {
	if m.duplicate("", serverURL, launchCommand) {
		return "", ErrSessionExists
	}
	id := m.nextID()
	m.sessions[id] = &Session{
		Session: api.Session{
			ID:            id,
			Name:          name,
			ServerURL:     serverURL,
			LaunchCommand: launchCommand,
			Status:        api.SessionCreated,
			CreatedAt:     time.Now(),
		},
	}
	m.order = append(m.order, id)
	m.logs.Infof(id, "debug session created: %s", id)
	m.log.Infof("created debug session %s", id)
	return id, nil
}

// Update edits a session's metadata. Only sessions in the created or
// finished state can be edited.
func (m *Manager) Update(id, name, serverURL, launchCommand string) error {
	s, ok := m.sessions[id]
	if !ok {
		return &SessionNotFoundError{ID: id}
	}
	if s.Status != api.SessionCreated && s.Status != api.SessionFinished {
		return &InvalidStateError{Op: "edit", Status: s.Status}
	}
	if m.duplicate(id, serverURL, launchCommand) {
		return ErrSessionExists
	}
	s.Name, s.ServerURL, s.LaunchCommand = name, serverURL, launchCommand
	m.logs.Infof(id, "debug session updated: %s", id)
	return nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, &SessionNotFoundError{ID: id}
	}
	return s, nil
}

// List returns all sessions in creation order.
func (m *Manager) List() []*Session {
	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		if s, ok := m.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Start connects the session and brings the simulated debuggee to its first
// stop. Finished and errored sessions are reset and restarted.
func (m *Manager) Start(id string) error {
	s, ok := m.sessions[id]
	if !ok {
		return &SessionNotFoundError{ID: id}
	}
	switch s.Status {
	case api.SessionCreated, api.SessionFinished, api.SessionErrored:
	default:
		return &InvalidStateError{Op: "start", Status: s.Status}
	}

	s.Status = api.SessionConnecting
	s.StatusDetail = ""
	m.logs.Infof(id, "starting debug session: %s", id)

	image, err := imageName(s.LaunchCommand)
	if err != nil {
		s.Status = api.SessionErrored
		s.StatusDetail = err.Error()
		m.logs.Errorf(id, "debug session %s failed: %v", id, err)
		return err
	}

	s.Backend = NewBackend(id, m.cpu)
	populate(s.Backend, image)
	s.Status = api.SessionPaused
	m.logs.Infof(id, "debug session %s paused at initial breakpoint", id)
	m.log.Infof("session %s started (%s)", id, image)
	return nil
}

// Stop terminates a running session. Stopping an unknown or already stopped
// session is not an error; the goal state is reached either way.
func (m *Manager) Stop(id string) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if !s.Status.Terminal() && s.Status != api.SessionCreated {
		s.Status = api.SessionFinished
		m.logs.Infof(id, "debug session %s finished", id)
	}
}

// Delete stops and removes a session. Deleting an unknown session succeeds.
func (m *Manager) Delete(id string) {
	m.Stop(id)
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		m.log.Infof("deleted session %s", id)
	}
}

// imageName extracts the debuggee image from the launch command line.
func imageName(launchCommand string) (string, error) {
	words, err := argv.Argv(launchCommand,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in %q", s)
		},
		nil)
	if err != nil {
		return "", fmt.Errorf("cannot parse launch command: %v", err)
	}
	if len(words) != 1 || len(words[0]) == 0 {
		return "", fmt.Errorf("illegal launch command %q", launchCommand)
	}
	return filepath.Base(words[0][0]), nil
}
