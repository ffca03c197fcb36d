// Command railpass fills, previews and exports souvenir train ticket
// mock-ups from JSON records.
//
// Usage:
//
//	railpass template                      print a record skeleton
//	railpass templates                     list the ticket templates
//	railpass validate FILE...              check records
//	railpass render FILE [-o out.html]     fill a template
//	railpass preview FILE [-o out.png]     rasterize one ticket
//	railpass export FILE... [-f pdf]       export a batch
//
// FILE may be a JSON object, a JSON array, JSON lines, or "-" for stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lvillar/railpass/config"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		var ec exitCode
		if errors.As(err, &ec) {
			os.Exit(int(ec))
		}
		fmt.Fprintf(os.Stderr, "railpass: %v\n", err)
		os.Exit(1)
	}
}

// exitCode ends the program with a status and no further message; the
// command has already reported what went wrong.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// env is what a command runs against.
type env struct {
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
}

type command struct {
	name    string
	summary string
	flags   func(fs *pflag.FlagSet) func(e *env, args []string) error
}

var commands = []command{
	{"template", "print a JSON record skeleton", templateCmd},
	{"templates", "list the ticket templates", templatesCmd},
	{"validate", "check records for required fields", validateCmd},
	{"render", "fill a template with a record and print the HTML", renderCmd},
	{"preview", "rasterize one record to PNG", previewCmd},
	{"export", "export records as PNG, ZIP or PDF", exportCmd},
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stdout)
		return nil
	}
	if args[0] == "--version" || args[0] == "version" {
		fmt.Fprintln(stdout, "railpass", version)
		return nil
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	fs := pflag.NewFlagSet("railpass "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", config.DefaultPath(), "path to the YAML config file")
	action := cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	return action(&env{ctx: ctx, stdin: stdin, stdout: stdout, stderr: stderr, cfg: cfg}, fs.Args())
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: railpass <command> [flags] [FILE...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, `FILE holds one JSON record, a JSON array, or JSON lines; "-" reads stdin.`)
	fmt.Fprintln(w, `Run "railpass <command> --help" for the command's flags.`)
}
