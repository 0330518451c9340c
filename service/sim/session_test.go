package sim

import (
	"errors"
	"testing"

	"github.com/go-memview/memview/pkg/memview/arch"
	"github.com/go-memview/memview/service/api"
)

func TestManagerCreateAndDuplicate(t *testing.T) {
	m := NewManager(arch.AMD64)

	id, err := m.Create("first", "tcp://localhost:9000", "app.exe --demo")
	if err != nil {
		t.Fatal(err)
	}
	s, err := m.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != api.SessionCreated {
		t.Errorf("status = %s, want created", s.Status)
	}

	if _, err := m.Create("second", "tcp://localhost:9000", "app.exe --demo"); err != ErrSessionExists {
		t.Errorf("duplicate create err = %v, want ErrSessionExists", err)
	}
	if _, err := m.Create("second", "tcp://localhost:9001", "app.exe --demo"); err != nil {
		t.Errorf("different server url should be allowed: %v", err)
	}
	if len(m.List()) != 2 {
		t.Errorf("List has %d sessions, want 2", len(m.List()))
	}
}

func TestManagerStartStop(t *testing.T) {
	m := NewManager(arch.AMD64)
	id, _ := m.Create("demo", "tcp://localhost:9000", "./bin/app.exe --demo")

	if err := m.Start(id); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Get(id)
	if s.Status != api.SessionPaused {
		t.Fatalf("status = %s, want paused", s.Status)
	}
	if s.Backend == nil {
		t.Fatal("started session has no backend")
	}
	if len(s.Backend.Modules()) == 0 || len(s.Backend.Threads()) == 0 {
		t.Error("backend should be populated with modules and threads")
	}
	if ctx := s.Backend.Registers(); ctx["rip"] == "" || ctx["rsp"] == "" {
		t.Errorf("registers not populated: %v", ctx)
	}

	// A paused session cannot be started again or edited.
	if err := m.Start(id); err == nil {
		t.Error("starting a paused session should fail")
	}
	if err := m.Update(id, "x", "y", "z"); err == nil {
		t.Error("editing a paused session should fail")
	}

	m.Stop(id)
	s, _ = m.Get(id)
	if s.Status != api.SessionFinished {
		t.Errorf("status after stop = %s, want finished", s.Status)
	}

	// Finished sessions restart from a clean state.
	if err := m.Start(id); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	s, _ = m.Get(id)
	if s.Status != api.SessionPaused {
		t.Errorf("status after restart = %s, want paused", s.Status)
	}
}

func TestImageName(t *testing.T) {
	for _, tc := range []struct {
		cmd  string
		want string
	}{
		{"./bin/app.exe --demo", "app.exe"},
		{"/opt/tools/target -p 1234", "target"},
		{`"/opt/my tools/my app.exe" --flag value`, "my app.exe"},
	} {
		got, err := imageName(tc.cmd)
		if err != nil {
			t.Errorf("imageName(%q): %v", tc.cmd, err)
			continue
		}
		if got != tc.want {
			t.Errorf("imageName(%q) = %q, want %q", tc.cmd, got, tc.want)
		}
	}

	for _, cmd := range []string{"", "a | b", "run `whoami`"} {
		if _, err := imageName(cmd); err == nil {
			t.Errorf("imageName(%q) should fail", cmd)
		}
	}
}

func TestManagerStartBadLaunchCommand(t *testing.T) {
	m := NewManager(arch.AMD64)
	id, _ := m.Create("demo", "tcp://localhost:9000", "")

	if err := m.Start(id); err == nil {
		t.Fatal("empty launch command should fail")
	}
	s, _ := m.Get(id)
	if s.Status != api.SessionErrored || s.StatusDetail == "" {
		t.Errorf("status = %s (%q), want error with detail", s.Status, s.StatusDetail)
	}
}

func TestManagerDeleteIsIdempotent(t *testing.T) {
	m := NewManager(arch.AMD64)
	id, _ := m.Create("demo", "tcp://localhost:9000", "app.exe")
	m.Delete(id)
	if _, err := m.Get(id); err == nil {
		t.Error("deleted session still present")
	}
	m.Delete(id)
	m.Delete("session_unknown")
}

func TestManagerErrors(t *testing.T) {
	m := NewManager(arch.AMD64)
	var nf *SessionNotFoundError
	if _, err := m.Get("nope"); !errors.As(err, &nf) {
		t.Errorf("Get err = %v, want *SessionNotFoundError", err)
	}
	if err := m.Start("nope"); !errors.As(err, &nf) {
		t.Errorf("Start err = %v, want *SessionNotFoundError", err)
	}
}

func TestManagerLogs(t *testing.T) {
	m := NewManager(arch.AMD64)
	id, _ := m.Create("demo", "tcp://localhost:9000", "app.exe")
	m.Start(id)

	entries := m.Logs().All()
	if len(entries) == 0 {
		t.Fatal("lifecycle should leave log entries")
	}
	for _, e := range entries {
		if e.SessionID != id {
			t.Errorf("entry %q scoped to %q, want %q", e.Message, e.SessionID, id)
		}
	}

	m.Logs().Clear()
	if len(m.Logs().All()) != 0 {
		t.Error("Clear left entries behind")
	}
}
