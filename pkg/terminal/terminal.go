package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/go-memview/memview/pkg/config"
	"github.com/go-memview/memview/pkg/memview/symbols"
	"github.com/go-memview/memview/pkg/memview/view"
	"github.com/go-memview/memview/service/sim"
)

const historyFile string = ".memview_history"

// Term represents the terminal running memview.
type Term struct {
	mgr  *sim.Manager
	sess *sim.Session
	view *view.View
	conf *config.Config

	prompt string
	line   *liner.State
	cmds   *Commands
	dumb   bool
	stdout io.Writer

	resolver *symbols.Resolver
}

// New returns a new Term wired to a started session. The session's backend
// delivers read and write replies into the view whenever the terminal pumps
// it after a command.
func New(mgr *sim.Manager, sess *sim.Session, conf *config.Config) *Term {
	cmds := InspectCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	if dumb {
		w = os.Stdout
	} else {
		w = getColorableWriter()
	}

	t := &Term{
		mgr:    mgr,
		sess:   sess,
		conf:   conf,
		prompt: "(memview) ",
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   dumb,
		stdout: w,
	}

	t.resolver = symbols.NewResolver(sess.Backend.Search)
	t.view = view.New(sess.ID, "term", sess.Backend.CPU(), sess.Backend, view.NewMapStore(), sess.Backend.Registers, t.resolver.Resolve)
	t.view.SetBigEndian(conf.BigEndian)
	if m, ok := defaultViewMode(conf); ok {
		t.view.SetViewMode(m)
	}
	sess.Backend.OnReadReply(t.view.OnReadReply)
	sess.Backend.OnWriteReply(t.view.OnWriteReply)
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// Run begins running memview in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	t.line.SetCompleter(func(line string) (c []string) {
		for _, cmd := range t.cmds.cmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(line)) {
					c = append(c, alias)
				}
			}
		}
		return
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	t.line.ReadHistory(f)
	f.Close()
	fmt.Println("Type 'help' for list of commands.")

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("prompt for input failed")
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
		// Deliver whatever the command queued on the backend before the
		// next prompt.
		t.pump()
	}
}

// pump delivers all queued backend replies and reports any view error that
// surfaced with them.
func (t *Term) pump() {
	t.sess.Backend.Flush()
	if err := t.view.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
	}
	if err := t.view.WriteErr(); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
	}
	if notice := t.view.Notice(); notice != "" {
		fmt.Fprintln(t.stdout, notice)
	}
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	t.mgr.Stop(t.sess.ID)
	return 0, nil
}
