// bullesctl is a terminal client for the Les Bulles de Joie portal.
//
// It keeps the session the way the web front end does: "login -remember"
// stores it in the state directory and it survives restarts, a plain login
// lives in the per-user runtime directory. Idle sessions are warned and then
// expired by the session guard while "watch" is running.
//
// Usage:
//
//	bullesctl [-url URL] [-state-dir DIR] <command> [flags]
//
// Environment:
//
//	BULLES_URL        portal base URL (default http://localhost:3000)
//	BULLES_STATE_DIR  directory for the remembered session
//	BULLES_LOG_LEVEL  diagnostic log level on stderr (default warn)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nerrad567/bulles-portal/internal/infrastructure/config"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
var version = "dev"

const defaultURL = "http://localhost:3000"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses the global flags and dispatches one command.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("bullesctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseURL := fs.String("url", envOr("BULLES_URL", defaultURL), "portal base URL")
	stateDir := fs.String("state-dir", envOr("BULLES_STATE_DIR", defaultStateDir()), "directory for the remembered session")
	logLevel := fs.String("log-level", envOr("BULLES_LOG_LEVEL", "warn"), "diagnostic log level")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	a, err := newApp(options{
		BaseURL:    *baseURL,
		StateDir:   *stateDir,
		RuntimeDir: runtimeDir(),
		In:         stdin,
		Out:        stdout,
		Err:        stderr,
		Logger: logging.NewWithWriter(config.LoggingConfig{
			Level:  *logLevel,
			Format: "text",
		}, version, stderr),
	})
	if err != nil {
		return err
	}
	defer a.Close()

	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "Usage: bullesctl [flags] <command> [command flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  login [-remember] [-u user]   sign in (asks for password and captcha)")
	fmt.Fprintln(out, "  logout                        sign out on the server and locally")
	fmt.Fprintln(out, "  profile                       show the signed-in account")
	fmt.Fprintln(out, "  results [-t N]                show your report card for trimester N")
	fmt.Fprintln(out, "  analytics [-t N]              class summary (admin)")
	fmt.Fprintln(out, "  audit [-action A] [-n N]      server security log (admin)")
	fmt.Fprintln(out, "  status [-n N]                 session state and the local security log")
	fmt.Fprintln(out, "  watch                         stay signed in; Enter counts as activity")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fs.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// defaultStateDir is the per-user config directory, or ./.bulles when the
// platform has none.
func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".bulles"
	}
	return filepath.Join(dir, "bulles")
}

// runtimeDir holds the non-remembered session. XDG_RUNTIME_DIR is cleared
// at logout of the desktop session; the temp dir fallback at reboot.
func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "bulles")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("bulles-%d", os.Getuid()))
}
