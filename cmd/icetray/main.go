// IceTray - IceCube configuration tool
//
// IceTray turns a declarative signal list into the two files an IceCube's
// EPICS IOC needs: a record database and a StreamDevice protocol file.
//
// Usage:
//
//	icetray [-config path] <command> [arguments]
//
// Commands:
//
//	build <doc>             build a cube, store it and write its artifacts
//	check <doc>             test-build a cube without storing anything
//	import <sheet>          convert a signal sheet (.xlsx, .csv) to a document
//	export <doc> <xlsx>     write a document out as a signal sheet
//	serve                   run the HTTP API and MQTT deploy service
//	agent                   mirror published artifacts onto this IOC host
//	migrate                 apply, list (-status) or roll back (-down) migrations
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

	"github.com/icetech/icetray/internal/infrastructure/config"
	_ "github.com/icetech/icetray/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/icetray.yaml"

// errUsage is returned for bad command lines; main exits with status 2.
var errUsage = errors.New("usage error")

// command is one subcommand. args excludes the command name.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *app, args []string) error
}

// app carries what every command needs.
type app struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

var commands = []command{
	{"build", "build a cube, store it and write its artifacts", runBuild},
	{"check", "test-build a cube without storing anything", runCheck},
	{"import", "convert a signal sheet (.xlsx, .csv) to a document", runImport},
	{"export", "write a document out as a signal sheet", runExport},
	{"serve", "run the HTTP API and MQTT deploy service", runServe},
	{"agent", "mirror published artifacts onto this IOC host", runAgent},
	{"migrate", "apply, list or roll back catalogue schema migrations", runMigrate},
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run parses the global flags and dispatches to a command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("icetray", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file (default $ICETRAY_CONFIG or "+defaultConfigPath+")")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() { usage(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	if *showVersion {
		fmt.Fprintf(stdout, "icetray %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: no command given", errUsage)
	}

	a := &app{configPath: *configPath, stdout: stdout, stderr: stderr}
	name := fs.Arg(0)
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.run(ctx, a, fs.Args()[1:])
		}
	}
	fs.Usage()
	return fmt.Errorf("%w: unknown command %q", errUsage, name)
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Usage: icetray [-config path] <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}

// loadConfig reads the configuration file. An explicit path (flag or
// ICETRAY_CONFIG) must exist; a missing default file falls back to the
// built-in defaults.
func (a *app) loadConfig() (*config.Config, error) {
	path := a.configPath
	if path == "" {
		path = os.Getenv("ICETRAY_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); errors.Is(err, os.ErrNotExist) {
			cfg := config.Default()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("validating config: %w", err)
			}
			return cfg, nil
		}
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// newFlagSet returns a flag set for a subcommand that reports errors
// instead of exiting.
func (a *app) newFlagSet(name, argsUsage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: icetray %s [flags] %s\n", name, argsUsage)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses a subcommand's flags, which may appear before or after
// the positional arguments, and checks the positional count.
func parseArgs(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(positional) != want {
		fs.Usage()
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, fs.Name(), want, len(positional))
	}
	return positional, nil
}
