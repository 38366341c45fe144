package cli

import (
	"context"
	"fmt"

	"go-auth-service/internal/client/tokenmanager"
	"go-auth-service/internal/model"
)

func runSignup(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet("signup", a.diag)
	name := fs.String("name", "", "display name")
	emailAddr := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("name", *name); err != nil {
		return err
	}
	if err := required("email", *emailAddr); err != nil {
		return err
	}

	pw, err := a.secret("password", *password)
	if err != nil {
		return err
	}

	result, err := a.public.Signup(ctx, model.SignupRequest{
		Name: *name, Email: *emailAddr, Password: pw, ConfirmPassword: pw,
	})
	if err != nil {
		return err
	}
	return a.storeResult(ctx, result)
}

func runSignin(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet("signin", a.diag)
	emailAddr := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("email", *emailAddr); err != nil {
		return err
	}

	pw, err := a.secret("password", *password)
	if err != nil {
		return err
	}

	result, err := a.public.Signin(ctx, *emailAddr, pw)
	if err != nil {
		return err
	}
	return a.storeResult(ctx, result)
}

func runMe(ctx context.Context, a *App, args []string) error {
	if err := parseFlags(newFlagSet("me", a.diag), args); err != nil {
		return err
	}

	user, err := a.authed.Me(ctx)
	if err != nil {
		return err
	}
	return a.print(user)
}

func runActivity(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet("activity", a.diag)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 20, "entries per page")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	data, meta, err := a.authed.Activity(ctx, *page, *limit)
	if err != nil {
		return err
	}
	return a.print(struct {
		Items []model.AuditEntry `json:"items"`
		Meta  model.Meta         `json:"meta"`
	}{Items: data.Items, Meta: meta})
}

func runRefresh(ctx context.Context, a *App, args []string) error {
	if err := parseFlags(newFlagSet("refresh", a.diag), args); err != nil {
		return err
	}
	if a.manager.State() != tokenmanager.StateAuthenticated {
		return tokenmanager.ErrLoggedOut
	}

	if _, err := a.manager.Refresh(ctx, a.manager.Credentials().AccessToken); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "tokens refreshed")
	return nil
}

func runLogout(ctx context.Context, a *App, args []string) error {
	if err := parseFlags(newFlagSet("logout", a.diag), args); err != nil {
		return err
	}
	return a.manager.Logout(ctx)
}

func runForgotPassword(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet("forgot-password", a.diag)
	emailAddr := fs.String("email", "", "email address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("email", *emailAddr); err != nil {
		return err
	}

	result, err := a.public.ForgotPassword(ctx, *emailAddr)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, result.Message)
	return nil
}

func runResetPassword(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet("reset-password", a.diag)
	rawToken := fs.String("token", "", "token from the reset email")
	password := fs.String("password", "", "new password (prompted when empty)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("token", *rawToken); err != nil {
		return err
	}

	pw, err := a.secret("new password", *password)
	if err != nil {
		return err
	}

	result, err := a.public.ResetPassword(ctx, model.ResetPasswordRequest{
		Token: *rawToken, Password: pw, ConfirmPassword: pw,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, result.Message)
	return nil
}

func runVerify(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet("verify", a.diag)
	rawToken := fs.String("token", "", "token from the verification email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("token", *rawToken); err != nil {
		return err
	}

	result, err := a.public.VerifyAccount(ctx, *rawToken)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, result.Message)
	return nil
}

func runResendVerification(ctx context.Context, a *App, args []string) error {
	fs := newFlagSet("resend-verification", a.diag)
	emailAddr := fs.String("email", "", "email address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("email", *emailAddr); err != nil {
		return err
	}

	result, err := a.public.ResendVerification(ctx, *emailAddr)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, result.Message)
	return nil
}
