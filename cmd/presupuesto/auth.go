package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"presupuesto/internal/auth"
	"presupuesto/internal/cli"
)

func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password.

The password may also be given in PRESUPUESTO_PASSWORD.

Examples:
  presupuesto login --email ana@example.com
  presupuesto login google`,
		RunE: withApp(false, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			if password == "" {
				password = os.Getenv("PRESUPUESTO_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}
			if err := app.Auth.Login(ctx, email, password); err != nil {
				return err
			}
			success(cmd, "Signed in as %s", email)
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")

	cmd.AddCommand(&cobra.Command{
		Use:   "google",
		Short: "Sign in with Google",
		RunE: withApp(false, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			st, err := app.SignInWithGoogle(ctx)
			if err != nil {
				return err
			}
			if !st.IsAuthenticated {
				return errors.New("Google sign-in completed but the backend did not issue a session")
			}
			success(cmd, "Signed in as %s", userEmail(ctx, app))
			return nil
		}),
	})

	return cmd
}

func registerCmd() *cobra.Command {
	var req auth.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: withApp(false, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			if req.Email == "" || req.Password == "" {
				return errors.New("email and password are required")
			}
			user, err := app.Auth.Register(ctx, req)
			if err != nil {
				return err
			}
			success(cmd, "Account created for %s. Run 'presupuesto login' to sign in", user.Email)
			return nil
		}),
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password")
	cmd.Flags().StringVar(&req.ConfirmPassword, "confirm-password", "", "Password again")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove every stored credential",
		RunE: withApp(false, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			ran, err := app.Logout.Logout(ctx)
			if !ran {
				return nil
			}
			if err != nil {
				warn(cmd, "Signed out with errors: %v", err)
				return nil
			}
			success(cmd, "Signed out")
			return nil
		}),
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: withApp(false, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			st := app.State.CurrentState()
			if !st.IsAuthenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			user := app.State.User(ctx)
			out := cmd.OutOrStdout()
			if user == nil {
				fmt.Fprintf(out, "Signed in (%s)\n", st.Source)
				return nil
			}
			name := user.FirstName
			if user.LastName != "" {
				name += " " + user.LastName
			}
			fmt.Fprintf(out, "%s\n", user.Email)
			if name != "" {
				fmt.Fprintf(out, "  name:   %s\n", name)
			}
			fmt.Fprintf(out, "  source: %s\n", st.Source)
			fmt.Fprintf(out, "  route:  %s\n", app.Navigator.Route(ctx, app.Config.LandingRoute))
			return nil
		}),
	}
}

func userEmail(ctx context.Context, app *cli.App) string {
	if u := app.State.User(ctx); u != nil && u.Email != "" {
		return u.Email
	}
	return "your Google account"
}

// success prints a success message.
func success(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %s\n", fmt.Sprintf(format, args...))
}
