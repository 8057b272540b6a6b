package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docsync/internal/config"
	"github.com/calvinalkan/docsync/internal/logging"
)

// env is what command constructors receive.
type env struct {
	cfg config.Config
	log *slog.Logger
}

// open wires the store, tree and hooks for commands that touch records.
func (e *env) open(ctx context.Context, o *IO) (*app, error) {
	return openApp(ctx, e.cfg, e.log, o)
}

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. A signal cancels the command context; a second signal
// is left to the default handler.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, environ map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("docsync", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	contentRoot := globals.String("content-root", "", "Override content_root")
	dbPath := globals.String("db", "", "Override db_path")
	logLevel := globals.String("log-level", "", "Override log_level (debug, info, warn, error)")
	logFormat := globals.String("log-format", "", "Override log_format (auto, console, json)")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return 1
	}

	rest := globals.Args()

	if *help || len(rest) == 0 {
		printUsage(out, globals, nil)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Overrides: config.Overrides{
			ContentRoot: *contentRoot,
			DBPath:      *dbPath,
			LogLevel:    *logLevel,
			LogFormat:   *logFormat,
		},
		Env: environ,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: errOut})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	e := &env{cfg: cfg, log: logger}
	commands := allCommands(e)

	name := rest[0]

	cmd, ok := findCommand(commands, name)
	if !ok {
		fprintln(errOut, "error: unknown command:", name)
		printUsage(errOut, globals, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				logger.Warn("interrupted, stopping")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(in, out, errOut), rest[1:])
}

func allCommands(e *env) []*Command {
	return []*Command{
		ReconcileCmd(e),
		CreateCmd(e),
		UpdateCmd(e),
		DeleteCmd(e),
		LsCmd(e),
		ShowCmd(e),
		IngestCmd(e),
		PrintConfigCmd(e),
	}
}

func findCommand(commands []*Command, name string) (*Command, bool) {
	for _, c := range commands {
		if c.Matches(name) {
			return c, true
		}
	}

	return nil, false
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	if commands == nil {
		commands = allCommands(&env{log: logging.Discard()})
	}

	fprintln(w, `docsync - keep a record store and a document tree in sync

Usage: docsync [options] <command> [args]

Options:`)

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})
	fprintln(w, strings.TrimRight(buf.String(), "\n"))

	fprintln(w, "\nCommands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
