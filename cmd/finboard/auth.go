package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
)

func cmdLogin(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if strings.TrimSpace(*email) == "" {
		if *email, err = e.prompt.Line("Email: "); err != nil {
			return err
		}
	}
	if *password == "" {
		if *password, err = e.prompt.Secret("Password: "); err != nil {
			return err
		}
	}

	user, err := e.app.Session.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Signed in as %s\n", user.Email)
	return nil
}

func cmdGoogleLogin(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("google-login", flag.ContinueOnError)
	idToken := fs.String("id-token", "", "Google ID token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := e.app.Session.SocialLogin(ctx, *idToken)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Signed in as %s\n", user.Email)
	return nil
}

func cmdSignup(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if strings.TrimSpace(*email) == "" {
		if *email, err = e.prompt.Line("Email: "); err != nil {
			return err
		}
	}
	if *password == "" {
		if *password, err = e.prompt.Secret("Password: "); err != nil {
			return err
		}
		confirm, err := e.prompt.Secret("Confirm password: ")
		if err != nil {
			return err
		}
		if confirm != *password {
			return errors.New("passwords do not match")
		}
	}

	msg, err := e.app.Session.Signup(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, msg)
	return nil
}

func cmdVerify(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: finboard verify <token>")
	}
	resp, err := e.app.Gateway.VerifyEmail(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, resp.Message)
	return nil
}

func cmdLogout(ctx context.Context, e *env, _ []string) error {
	e.app.Session.Logout(ctx)
	fmt.Fprintln(e.out, "Signed out")
	return nil
}

func cmdWhoami(_ context.Context, e *env, _ []string) error {
	s := e.app.Session.Current()
	if !s.Authenticated() {
		fmt.Fprintln(e.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(e.out, "%s (%s)\n", s.User.Email, s.User.ID)
	if !s.User.EmailVerified {
		fmt.Fprintln(e.out, "Email not verified")
	}
	return nil
}
