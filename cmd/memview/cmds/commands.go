package cmds

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-memview/memview/pkg/config"
	"github.com/go-memview/memview/pkg/logflags"
	"github.com/go-memview/memview/pkg/memview/arch"
	"github.com/go-memview/memview/pkg/terminal"
	"github.com/go-memview/memview/pkg/version"
	"github.com/go-memview/memview/service/sim"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// cpuArch is the architecture of the inspected target.
	cpuArch string
	// sessionName is the display name of the created session.
	sessionName string
	// serverURL is the debug server the session attaches to.
	serverURL string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const memviewCommandLongDesc = `Memview is a memory inspector for native debug targets.

Memview lets you navigate target memory with address expressions built from
hex literals, CPU registers and symbols, view it in several formatting modes,
and stage byte edits that are written back to the target in batches.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main memview root command.
	rootCommand = &cobra.Command{
		Use:   "memview",
		Short: "Memview is a memory inspector for native debug targets.",
		Long:  memviewCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'memview help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'memview help log').")

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Memview Memory Inspector\n%s\n", version.MemviewVersion)
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				fmt.Printf("Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolP("verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	// 'inspect' subcommand.
	inspectCommand := &cobra.Command{
		Use:   "inspect <command> [args...]",
		Short: "Start a session for the given launch command and begin inspecting its memory.",
		Long: `Start a session for the given launch command and begin inspecting its memory.

The launch command names the target image; its base name becomes the main
module of the session. Everything after the command is passed to the target
as arguments, for example:

	memview inspect -- ./app --config conf.toml
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a launch command")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(inspect(args, conf))
		},
	}
	inspectCommand.Flags().StringVar(&sessionName, "name", "", "Display name of the session, defaults to the launch command.")
	inspectCommand.Flags().StringVar(&serverURL, "url", "tcp://localhost:9000", "Debug server the session attaches to.")
	inspectCommand.Flags().StringVar(&cpuArch, "arch", "amd64", "Architecture of the target (amd64, arm64).")
	rootCommand.AddCommand(inspectCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag.

Besides the --log flag it is possible to specify which components should
produce logs using the --log-output flag. It accepts a comma separated list
of component names:

	view		Log the memory view state machine
	expr		Log address expression evaluation
	symbols		Log symbol resolution
	sim		Log the simulated session backend

The --log-dest flag takes a file path or a file descriptor number; logs are
written to stderr when it is not specified.`,
	})

	return rootCommand
}

func inspect(args []string, conf *config.Config) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	cpu, ok := arch.Parse(cpuArch)
	if !ok {
		fmt.Fprintf(os.Stderr, "unsupported architecture %q\n", cpuArch)
		return 1
	}

	launchCommand := strings.Join(args, " ")
	name := sessionName
	if name == "" {
		name = launchCommand
	}

	mgr := sim.NewManager(cpu)
	id, err := mgr.Create(name, serverURL, launchCommand)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot create session: %v\n", err)
		return 1
	}
	if err := mgr.Start(id); err != nil {
		fmt.Fprintf(os.Stderr, "cannot start session: %v\n", err)
		return 1
	}
	sess, _ := mgr.Get(id)
	if sess.Status.Terminal() {
		fmt.Fprintf(os.Stderr, "session failed: %s\n", sess.StatusDetail)
		return 1
	}

	term := terminal.New(mgr, sess, conf)
	status, err := term.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}
