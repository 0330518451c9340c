package terminal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-memview/memview/pkg/config"
	"github.com/go-memview/memview/pkg/memview/arch"
	"github.com/go-memview/memview/pkg/memview/symbols"
	"github.com/go-memview/memview/pkg/memview/view"
	"github.com/go-memview/memview/service/sim"
)

// fakeTerminal drives the command table without a liner prompt.
type fakeTerminal struct {
	*Term
	out *bytes.Buffer
}

func newFakeTerminal(t *testing.T, conf *config.Config) *fakeTerminal {
	t.Helper()
	mgr := sim.NewManager(arch.AMD64)
	id, err := mgr.Create("test", "tcp://localhost:9000", "app.exe")
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Start(id); err != nil {
		t.Fatal(err)
	}
	sess, _ := mgr.Get(id)

	if conf == nil {
		conf = &config.Config{}
	}
	out := new(bytes.Buffer)
	ft := &fakeTerminal{
		Term: &Term{
			mgr:    mgr,
			sess:   sess,
			conf:   conf,
			cmds:   InspectCommands(),
			stdout: out,
			dumb:   true,
		},
		out: out,
	}
	ft.resolver = symbols.NewResolver(sess.Backend.Search)
	ft.view = view.New(sess.ID, "term", sess.Backend.CPU(), sess.Backend, view.NewMapStore(), sess.Backend.Registers, ft.resolver.Resolve)
	sess.Backend.OnReadReply(ft.view.OnReadReply)
	sess.Backend.OnWriteReply(ft.view.OnWriteReply)
	return ft
}

func (ft *fakeTerminal) exec(t *testing.T, cmdstr string) string {
	t.Helper()
	ft.out.Reset()
	if err := ft.cmds.Call(cmdstr, ft.Term); err != nil {
		t.Fatalf("%q: %v", cmdstr, err)
	}
	ft.sess.Backend.Flush()
	return ft.out.String()
}

func TestCommandGotoAndExamine(t *testing.T) {
	ft := newFakeTerminal(t, nil)

	ft.exec(t, "goto rip")
	out := ft.exec(t, "examinemem")
	if !strings.Contains(out, "0x140001000:") {
		t.Errorf("missing address column in:\n%s", out)
	}
	if !strings.Contains(out, "55") {
		t.Errorf("missing prologue byte in:\n%s", out)
	}
}

func TestCommandModeRoundTrip(t *testing.T) {
	ft := newFakeTerminal(t, nil)

	if out := ft.exec(t, "mode"); !strings.Contains(out, "byte") {
		t.Errorf("default mode = %q", out)
	}
	ft.exec(t, "mode qword")
	if out := ft.exec(t, "mode"); !strings.Contains(out, "qword") {
		t.Errorf("mode after change = %q", out)
	}
	if err := ft.cmds.Call("mode floatish", ft.Term); err == nil {
		t.Error("bogus mode accepted")
	}
}

func TestCommandEditApply(t *testing.T) {
	ft := newFakeTerminal(t, nil)

	ft.exec(t, "goto 0x30000000")
	ft.exec(t, "edit 0 CC")
	out := ft.exec(t, "examinemem 1")
	if !strings.Contains(out, "CC*") {
		t.Errorf("pending edit not marked in:\n%s", out)
	}

	ft.exec(t, "apply")
	out = ft.exec(t, "examinemem 1")
	if !strings.Contains(out, "CC") || strings.Contains(out, "CC*") {
		t.Errorf("edit not committed in:\n%s", out)
	}
}

func TestCommandEditDiscard(t *testing.T) {
	ft := newFakeTerminal(t, nil)

	ft.exec(t, "goto 0x30000000")
	ft.exec(t, "edit 4 AB")
	ft.exec(t, "discard")
	if out := ft.exec(t, "examinemem 1"); strings.Contains(out, "AB") {
		t.Errorf("discarded edit still visible in:\n%s", out)
	}
}

func TestCommandInfo(t *testing.T) {
	ft := newFakeTerminal(t, nil)

	if out := ft.exec(t, "regs"); !strings.Contains(out, "rip") {
		t.Errorf("regs output missing rip:\n%s", out)
	}
	if out := ft.exec(t, "modules"); !strings.Contains(out, "ntdll.dll") {
		t.Errorf("modules output missing ntdll:\n%s", out)
	}
	if out := ft.exec(t, "threads"); !strings.Contains(out, "Thread") {
		t.Errorf("threads output:\n%s", out)
	}
	if out := ft.exec(t, "symbols NtCreate"); !strings.Contains(out, "NtCreateFile") {
		t.Errorf("symbols output:\n%s", out)
	}
	if out := ft.exec(t, "status"); !strings.Contains(out, "paused") {
		t.Errorf("status output:\n%s", out)
	}
}

func TestCommandAliasesAndHelp(t *testing.T) {
	ft := newFakeTerminal(t, nil)

	ft.exec(t, "g 0x30000000")
	if out := ft.exec(t, "x"); !strings.Contains(out, "0x30000000:") {
		t.Errorf("alias output:\n%s", out)
	}

	if out := ft.exec(t, "help"); !strings.Contains(out, "examinemem") {
		t.Errorf("help output missing command list:\n%s", out)
	}
	if out := ft.exec(t, "help goto"); !strings.Contains(out, "goto <expression>") {
		t.Errorf("help goto output:\n%s", out)
	}
	if err := ft.cmds.Call("frobnicate", ft.Term); err != noCmdError {
		t.Errorf("unknown command error = %v", err)
	}
}

func TestCommandMergeAliases(t *testing.T) {
	ft := newFakeTerminal(t, &config.Config{
		Aliases: map[string][]string{"examinemem": {"hexdump"}},
	})
	ft.cmds.Merge(ft.conf.Aliases)

	ft.exec(t, "goto 0x30000000")
	if out := ft.exec(t, "hexdump 1"); !strings.Contains(out, "0x30000000:") {
		t.Errorf("merged alias output:\n%s", out)
	}
}

func TestCommandBytesPerLineConfig(t *testing.T) {
	n := 8
	ft := newFakeTerminal(t, &config.Config{BytesPerLine: &n})

	ft.exec(t, "goto 0x30000000")
	out := ft.exec(t, "examinemem 2")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d rows, want 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "0x30000008:") {
		t.Errorf("second row should start at 0x30000008: %q", lines[1])
	}
}

func TestCommandExit(t *testing.T) {
	ft := newFakeTerminal(t, nil)
	err := ft.cmds.Call("quit", ft.Term)
	if _, ok := err.(ExitRequestError); !ok {
		t.Errorf("quit returned %v, want ExitRequestError", err)
	}
}
