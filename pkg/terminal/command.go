// Package terminal implements functions for responding to user
// input and dispatching to appropriate memory inspection commands.
package terminal

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/go-memview/memview/pkg/config"
	"github.com/go-memview/memview/pkg/memview/viewmode"
	"github.com/go-memview/memview/service/api"
)

const defaultSymbolResults = 30

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the memview terminal process.
type Commands struct {
	cmds []command
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// InspectCommands returns a Commands struct with default commands defined.
func InspectCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"goto", "g"}, group: viewCmds, cmdFn: gotoAddress, helpMsg: `Navigates the view to an address expression.

	goto <expression>

The expression is a sum of hex literals (0x prefixed), decimal literals,
register names and symbols, for example:

	goto rsp+0x40
	goto ntdll!NtCreateFile+0x20
`},
		{aliases: []string{"examinemem", "x", "mem"}, group: viewCmds, cmdFn: examineMem, helpMsg: `Prints the memory at the current address.

	examinemem [rows]

Pending edits are marked with a *. The optional rows argument limits how
many 16-byte rows are printed.`},
		{aliases: []string{"mode"}, group: viewCmds, cmdFn: modeCommand, helpMsg: `Shows or changes the view formatting mode.

	mode [byte|word|dword|qword|float|pointer]

Called without arguments it prints the current mode. Changing the mode
cancels an edit in progress but keeps pending changes.`},
		{aliases: []string{"refresh"}, group: viewCmds, cmdFn: refresh, helpMsg: "Re-reads the current address, keeping pending edits."},
		{aliases: []string{"edit"}, group: editCmds, cmdFn: editCommand, helpMsg: `Stages a new value for the unit at the given offset.

	edit <offset> <value>

The offset is relative to the first visible byte. The value is typed in
the current view mode: hex digits for the integer modes, a decimal
number for float. Staged bytes are kept locally until "apply".`},
		{aliases: []string{"apply"}, group: editCmds, cmdFn: applyCommand, helpMsg: `Writes all pending edits to the target.

Consecutive edited bytes are written together. After the batch completes
the view re-reads the target to confirm what actually changed.`},
		{aliases: []string{"discard"}, group: editCmds, cmdFn: discardCommand, helpMsg: "Drops all pending edits without writing them."},
		{aliases: []string{"regs"}, group: infoCmds, cmdFn: regs, helpMsg: "Print contents of CPU registers."},
		{aliases: []string{"symbols", "sym"}, group: infoCmds, cmdFn: symbolsCommand, helpMsg: `Searches symbols by prefix.

	symbols <pattern>

The pattern may be qualified with a module name, as in ntdll!NtCreate.`},
		{aliases: []string{"modules"}, group: infoCmds, cmdFn: modules, helpMsg: "Print the modules loaded in the target."},
		{aliases: []string{"threads"}, group: infoCmds, cmdFn: threads, helpMsg: "Print out info for every thread in the target."},
		{aliases: []string{"status"}, group: infoCmds, cmdFn: status, helpMsg: "Print the session and view state."},
		{aliases: []string{"logs"}, group: infoCmds, cmdFn: logsCommand, helpMsg: "Print the session event log."},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the inspector, stopping the session."},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for _, v := range c.cmds {
		if v.match(cmdstr) {
			v.cmdFn = cf
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// If the command is an empty string it will replay the last command.
func (c *Commands) Find(cmdstr string) cmdfunc {
	// If <enter> use last command, if there was one.
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var noCmdError = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return noCmdError
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return noCmdError
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, `Type "help" followed by a command for full documentation.`)
	return nil
}

func gotoAddress(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments. usage: goto <expression>")
	}
	return t.view.GoToAddress(args)
}

func examineMem(t *Term, args string) error {
	mem := t.view.Effective()
	if len(mem) == 0 {
		return errors.New("nothing mapped, use goto first")
	}

	rows := len(mem)/bytesPerLine(t.conf) + 1
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid row count %q", args)
		}
		rows = n
	}
	if max := rows * bytesPerLine(t.conf); len(mem) > max {
		mem = mem[:max]
	}

	fmt.Fprint(t.stdout, api.PrettyMemory(t.view.BaseAddr(), mem, t.view.LittleEndian(), t.view.Mode(), t.view.PendingSet(), bytesPerLine(t.conf)))
	return nil
}

func modeCommand(t *Term, args string) error {
	if args == "" {
		fmt.Fprintln(t.stdout, t.view.Mode())
		return nil
	}
	m, ok := viewmode.Parse(args)
	if !ok {
		return fmt.Errorf("unknown view mode %q", args)
	}
	t.view.SetViewMode(m)
	return nil
}

func refresh(t *Term, args string) error {
	t.view.Refresh()
	return nil
}

func editCommand(t *Term, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return errors.New("not enough arguments. usage: edit <offset> <value>")
	}
	offset, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 32)
	if err != nil {
		return fmt.Errorf("invalid offset %q", fields[0])
	}
	if err := t.view.StartEdit(int(offset)); err != nil {
		return err
	}
	return t.view.CommitEdit(fields[1])
}

func applyCommand(t *Term, args string) error {
	return t.view.ApplyPendingChanges()
}

func discardCommand(t *Term, args string) error {
	t.view.DiscardPendingChanges()
	return nil
}

func regs(t *Term, args string) error {
	rf := t.sess.Backend.RegisterFile()
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, r := range rf.Regs {
		fmt.Fprintf(w, "%s\t=\t%s\n", strings.ToLower(r.Name), r.Value)
	}
	return w.Flush()
}

func symbolsCommand(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments. usage: symbols <pattern>")
	}
	limit := defaultSymbolResults
	if t.conf.MaxSymbolResults != nil {
		limit = *t.conf.MaxSymbolResults
	}
	candidates, err := t.sess.Backend.Search(args, limit)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Fprintln(t.stdout, "no symbols found")
		return nil
	}
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, cand := range candidates {
		fmt.Fprintf(w, "%s\t%#x\n", cand.DisplayName(), cand.Addr)
	}
	return w.Flush()
}

func modules(t *Term, args string) error {
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, m := range t.sess.Backend.Modules() {
		fmt.Fprintf(w, "%s\t%#x\t%#x\n", m.Name, m.Base, m.Size)
	}
	return w.Flush()
}

func threads(t *Term, args string) error {
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, th := range t.sess.Backend.Threads() {
		fmt.Fprintf(w, "Thread %d\tstart %#x\n", th.ID, th.StartAddr)
	}
	return w.Flush()
}

func status(t *Term, args string) error {
	fmt.Fprintf(t.stdout, "Session %s (%s) is %s.\n", t.sess.ID, t.sess.Name, t.sess.Status)
	fmt.Fprintf(t.stdout, "Viewing %#x in %s mode.\n", t.view.BaseAddr(), t.view.Mode())
	if offsets := t.view.PendingOffsets(); len(offsets) > 0 {
		fmt.Fprintf(t.stdout, "%d pending edit(s).\n", len(offsets))
	}
	return nil
}

func logsCommand(t *Term, args string) error {
	for _, entry := range t.mgr.Logs().All() {
		if entry.SessionID != t.sess.ID {
			continue
		}
		fmt.Fprintf(t.stdout, "%s [%s] %s\n", entry.When.Format("15:04:05.000"), entry.Level, entry.Message)
	}
	return nil
}

// ExitRequestError is returned when the user
// exits memview.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func bytesPerLine(conf *config.Config) int {
	if conf != nil && conf.BytesPerLine != nil && *conf.BytesPerLine > 0 {
		return *conf.BytesPerLine
	}
	return 16
}

func defaultViewMode(conf *config.Config) (viewmode.Mode, bool) {
	if conf == nil || conf.DefaultViewMode == "" {
		return viewmode.Byte, false
	}
	return viewmode.Parse(conf.DefaultViewMode)
}
