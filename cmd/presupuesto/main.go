package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"presupuesto/internal/api"
	"presupuesto/internal/auth"
	"presupuesto/internal/cli"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

const shutdownTimeout = 5 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "presupuesto",
		Short: "Personal budgeting from the terminal",
		Long: `presupuesto is a command-line client for the budgeting backend.

Sign in with email and password or with Google, then manage
transactions, categories, budgets and notifications.`,
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		loginCmd(),
		registerCmd(),
		logoutCmd(),
		whoamiCmd(),
		transactionsCmd(),
		categoriesCmd(),
		budgetsCmd(),
		dashboardCmd(),
		notificationsCmd(),
		settingsCmd(),
	)

	cli.LoadEnvFile()
	ctx, cancel := cli.GracefulShutdown(context.Background(), cli.SetupLogger(os.Getenv("LOG_LEVEL")), shutdownTimeout, nil)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// runner is the body of a command once the app is wired and the session
// observed.
type runner func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error

// withApp wires the app, observes the session and runs fn. When
// requireAuth is set, fn only runs for an authenticated session.
func withApp(requireAuth bool, fn runner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadAndValidateConfig()
		if err != nil {
			return err
		}
		logger := cli.SetupLogger(cfg.LogLevel)

		ctx := cmd.Context()
		app, err := cli.NewApp(ctx, cfg, logger, cli.WithPrompt(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				logger.Warn("Failed to close session backend", "error", err)
			}
		}()

		if requireAuth {
			_, err = app.RequireAuth(ctx)
		} else {
			_, err = app.Observe(ctx)
		}
		if err != nil {
			return describe(err)
		}
		return describe(fn(ctx, cmd, args, app))
	}
}

// describe turns a classified failure into the message shown to the user.
func describe(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cli.ErrNotSignedIn) || errors.Is(err, auth.ErrPasswordMismatch) {
		return err
	}
	kind, msg := api.Describe(err)
	if kind == api.KindAuth {
		return fmt.Errorf("%s. Run 'presupuesto login' to sign in again", msg)
	}
	return errors.New(msg)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
