package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/nerrad567/bulles-portal/internal/auth"
	"github.com/nerrad567/bulles-portal/internal/client"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/logging"
	"github.com/nerrad567/bulles-portal/internal/sessionguard"
)

// stateFile is the session store's name in both the state and runtime dirs.
const stateFile = "session.json"

var errCaptcha = errors.New("captcha incorrect")

// options configures an app. Zero Guard settings take the guard defaults.
type options struct {
	BaseURL    string
	StateDir   string
	RuntimeDir string
	HTTPClient *http.Client
	Guard      sessionguard.Config
	Captcha    func() sessionguard.Captcha

	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Logger *logging.Logger
}

// app is one CLI invocation: a portal client and a guard over the on-disk
// session stores.
type app struct {
	client  *client.Client
	guard   *sessionguard.Guard
	captcha func() sessionguard.Captcha
	log     *logging.Logger

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	// expired is signalled when the guard ends the session.
	expired chan struct{}
}

func newApp(opts options) (*app, error) {
	durable, err := sessionguard.NewFileStorage(filepath.Join(opts.StateDir, stateFile))
	if err != nil {
		return nil, fmt.Errorf("opening state directory: %w", err)
	}
	volatile, err := sessionguard.NewFileStorage(filepath.Join(opts.RuntimeDir, stateFile))
	if err != nil {
		return nil, fmt.Errorf("opening runtime directory: %w", err)
	}

	a := &app{
		client:  client.New(opts.BaseURL, opts.HTTPClient),
		captcha: opts.Captcha,
		log:     opts.Logger,
		in:      bufio.NewReader(opts.In),
		out:     opts.Out,
		errOut:  opts.Err,
		expired: make(chan struct{}, 1),
	}
	if a.captcha == nil {
		a.captcha = sessionguard.NewCaptcha
	}
	if a.log == nil {
		a.log = logging.Nop()
	}
	if a.errOut == nil {
		a.errOut = io.Discard
	}

	cfg := opts.Guard
	if cfg.Logger == nil {
		cfg.Logger = a.log
	}
	a.guard, err = sessionguard.New(durable, volatile, cfg, sessionguard.NotifierFunc(a.notify))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close stops the guard's timers. The stored session stays on disk.
func (a *app) Close() {
	a.guard.Close()
}

func (a *app) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx, args)
	case "profile":
		return a.profile(ctx, args)
	case "results":
		return a.results(ctx, args)
	case "analytics":
		return a.analytics(ctx, args)
	case "audit":
		return a.auditLog(ctx, args)
	case "status":
		return a.status(args)
	case "watch":
		return a.watch(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (a *app) notify(n sessionguard.Notice) {
	fmt.Fprintf(a.errOut, "! %s\n", n.Message)
	if n.Kind == sessionguard.NoticeExpired {
		select {
		case a.expired <- struct{}{}:
		default:
		}
	}
}

// prompt writes label and reads one line of input.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// session picks up the stored session, or fails with ErrNotAuthenticated.
func (a *app) session() (*sessionguard.Session, error) {
	a.guard.Restore()
	s := a.guard.Session()
	if s == nil {
		return nil, sessionguard.ErrNotAuthenticated
	}
	return s, nil
}

// withToken runs fn with the current access token. A rejected token is
// refreshed once and fn retried; a rejected refresh ends the session.
func (a *app) withToken(ctx context.Context, fn func(token string) error) error {
	s, err := a.session()
	if err != nil {
		return err
	}

	err = fn(s.AccessToken)
	if !errors.Is(err, auth.ErrTokenInvalid) {
		return err
	}

	a.log.Debug("access token rejected, refreshing", "user_id", s.User.ID)
	if rerr := a.guard.Refresh(ctx, a.client); rerr != nil {
		return fmt.Errorf("refreshing session: %w", rerr)
	}
	if s = a.guard.Session(); s == nil {
		return sessionguard.ErrNotAuthenticated
	}
	return fn(s.AccessToken)
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
