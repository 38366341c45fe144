// Package cli implements the authctl commands on top of the typed API client
// and the token manager.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go-auth-service/internal/client/authapi"
	"go-auth-service/internal/client/tokenmanager"
	"go-auth-service/internal/model"
)

// ErrUsage marks errors caused by bad command-line input.
var ErrUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, a *App, args []string) error
}

var commands = map[string]command{
	"signup":              {"create an account and sign in", runSignup},
	"signin":              {"sign in and store the token pair", runSignin},
	"me":                  {"show the signed-in account", runMe},
	"activity":            {"list recent security events", runActivity},
	"refresh":             {"rotate the stored token pair", runRefresh},
	"logout":              {"forget the stored token pair", runLogout},
	"forgot-password":     {"request a password reset email", runForgotPassword},
	"reset-password":      {"set a new password with a reset token", runResetPassword},
	"verify":              {"verify the account with an emailed token", runVerify},
	"resend-verification": {"send a new verification email", runResendVerification},
}

type App struct {
	cfg     Config
	public  *authapi.Client
	authed  *authapi.Client
	manager *tokenmanager.Manager
	in      *bufio.Reader
	out     io.Writer
	// diag receives prompts, usage and notices so out stays machine-readable.
	diag io.Writer
}

// NewApp wires the API clients around store. Authenticated calls go through
// the manager's transport; public calls and the refresh itself do not.
// Command results go to out; everything meant for a person goes to diag.
func NewApp(ctx context.Context, cfg Config, store tokenmanager.Store, in io.Reader, out io.Writer, diag io.Writer) (*App, error) {
	plain := &http.Client{Timeout: cfg.Timeout}
	public := authapi.New(cfg.ServerURL, plain)

	manager := tokenmanager.New(store, public, tokenmanager.Config{
		Lookahead:      cfg.RefreshLookahead,
		MaxAttempts:    cfg.MaxAttempts,
		RefreshTimeout: cfg.Timeout,
	})
	if err := manager.Restore(ctx); err != nil {
		return nil, err
	}
	manager.OnLogout(func() {
		fmt.Fprintln(diag, "session ended; sign in again")
	})

	authed := authapi.New(cfg.ServerURL, &http.Client{
		Timeout:   cfg.Timeout,
		Transport: manager.Transport(http.DefaultTransport),
	})

	return &App{
		cfg:     cfg,
		public:  public,
		authed:  authed,
		manager: manager,
		in:      bufio.NewReader(in),
		out:     out,
		diag:    diag,
	}, nil
}

func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return ErrUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		a.usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	return cmd.run(ctx, a, args[1:])
}

func (a *App) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(a.diag, "usage: authctl <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(a.diag, "  %-20s %s\n", name, commands[name].summary)
	}
}

func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// secret returns value, or prompts for it on the input stream when empty.
func (a *App) secret(prompt string, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(a.diag, "%s: ", prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", prompt, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%w: %s is required", ErrUsage, prompt)
	}
	return line, nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return nil
}

func required(flagName string, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: -%s is required", ErrUsage, flagName)
	}
	return nil
}

func (a *App) storeResult(ctx context.Context, result model.AuthResult) error {
	if err := a.manager.SetTokens(ctx, result.AccessToken, result.RefreshToken); err != nil {
		return err
	}
	return a.print(result.User)
}
