// Command triage classifies bug reports, searches for duplicates and files tickets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"bugtriage/pkg/logx"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *cliEnv, args []string) error
}

// cliEnv carries the global flags and output streams into each subcommand.
type cliEnv struct {
	projectDir string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

//nolint:gochecknoglobals // command table
var commands = []command{
	{"run", "triage one report and print the outcome", cmdRun},
	{"repl", "triage reports interactively, printing each execution trace", cmdRepl},
	{"eval", "replay a golden set and grade every run", cmdEval},
	{"seed", "write the demo tickets, chat threads and issues", cmdSeed},
	{"serve", "serve the triage HTTP API", cmdServe},
	{"history", "list stored runs or show one run", cmdHistory},
	{"stats", "query Prometheus for aggregate triage activity", cmdStats},
	{"secrets", "manage the encrypted secrets file", cmdSecrets},
	{"version", "print version information", cmdVersion},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run contains the main application logic and returns an exit code.
// This allows defers to execute before os.Exit is called.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("triage", flag.ContinueOnError)
	fs.SetOutput(stderr)
	projectDir := fs.String("projectdir", ".", "Project directory holding .triage/")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		printUsage(stderr, fs)
		return 2
	}
	if *debug {
		logx.SetDebug(true)
	}

	name := fs.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		printUsage(stderr, fs)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &cliEnv{projectDir: *projectDir, stdin: stdin, stdout: stdout, stderr: stderr}
	if err := cmd.run(ctx, env, fs.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		var exit exitError
		if errors.As(err, &exit) {
			return int(exit)
		}
		fmt.Fprintf(stderr, "❌ triage %s: %v\n", name, err)
		return 1
	}
	return 0
}

// exitError ends a command with a specific exit code and no further message.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: triage [global flags] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fs.PrintDefaults()
}

func newFlagSet(env *cliEnv, name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	fs.Usage = func() {
		fmt.Fprintf(env.stderr, "Usage: triage %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}
