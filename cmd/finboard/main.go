package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"finboard/internal/app"
	"finboard/internal/cli"
	"finboard/internal/session"
)

var buildVersion = "dev"

var errNotSignedIn = errors.New("not signed in; run `finboard login` first")

type command struct {
	name    string
	summary string
	auth    bool
	run     func(ctx context.Context, env *env, args []string) error
}

// env is what a command runs against.
type env struct {
	app    *app.App
	out    io.Writer
	prompt *cli.Prompter
}

var commands = []command{
	{"login", "Sign in with email and password", false, cmdLogin},
	{"google-login", "Sign in with a Google ID token", false, cmdGoogleLogin},
	{"signup", "Create an account", false, cmdSignup},
	{"verify", "Verify an email address with the emailed token", false, cmdVerify},
	{"logout", "Forget the stored credential", false, cmdLogout},
	{"whoami", "Show the signed-in user", false, cmdWhoami},
	{"analyze", "Analyze income and expenses", true, cmdAnalyze},
	{"history", "List recorded analyses", false, cmdHistory},
	{"restore", "Show the latest recorded analysis with its inputs", false, cmdRestore},
	{"recurring", "Detect recurring expenses", true, cmdRecurring},
	{"trends", "Show monthly and category trends", true, cmdTrends},
	{"goals", "Manage savings goals", true, cmdGoals},
	{"chat", "Ask the finance assistant", true, cmdChat},
	{"import-pdf", "Extract expenses from a bank statement", true, cmdImportPDF},
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	name, args := os.Args[1], os.Args[2:]

	switch name {
	case "version", "--version", "-v":
		fmt.Println("finboard", buildVersion)
		return
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", name)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err := run(*cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd command, args []string) error {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	s := a.Start(ctx)
	if cmd.auth && s.State != session.StateAuthenticated {
		return errNotSignedIn
	}

	return cmd.run(ctx, &env{
		app:    a,
		out:    os.Stdout,
		prompt: cli.NewPrompter(os.Stdin, os.Stderr),
	}, args)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: finboard <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-13s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "  version       Print the version")
}
