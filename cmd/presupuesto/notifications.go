package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"presupuesto/internal/cli"
	"presupuesto/internal/core"
	"presupuesto/internal/metrics"
	"presupuesto/internal/middleware/security"
	"presupuesto/internal/middleware/trace"
	"presupuesto/internal/notify"
)

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"n"},
		Short:   "Read and manage notifications",
	}
	cmd.AddCommand(
		notificationsListCmd(),
		notificationsReadCmd(),
		notificationsReadAllCmd(),
		notificationsDeleteCmd(),
		notificationsWatchCmd(),
	)
	return cmd
}

func notificationsListCmd() *cobra.Command {
	var (
		limit      int
		unreadOnly bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			ns, err := app.Budget.Notifications.List(ctx, limit)
			if err != nil {
				return err
			}
			if unreadOnly {
				ns = core.Unread(ns)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREAD\tPRIORITY\tTITLE\tMESSAGE")
			for _, n := range ns {
				fmt.Fprintf(w, "%d\t%t\t%s\t%s\t%s\n", n.ID, n.Read, n.Priority, n.Title, n.Message)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum notifications (default 50)")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only unread notifications")
	return cmd
}

func notificationsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := app.Budget.Notifications.MarkRead(ctx, id); err != nil {
				return err
			}
			success(cmd, "Notification %d marked as read", id)
			return nil
		}),
	}
}

func notificationsReadAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			if err := app.Budget.Notifications.MarkAllRead(ctx); err != nil {
				return err
			}
			success(cmd, "All notifications marked as read")
			return nil
		}),
	}
}

func notificationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := app.Budget.Notifications.Delete(ctx, id); err != nil {
				return err
			}
			success(cmd, "Notification %d deleted", id)
			return nil
		}),
	}
}

func notificationsWatchCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll for new notifications until interrupted or logged out",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			out := cmd.OutOrStdout()
			opts := []notify.Option{
				notify.WithSeen(app.Ephemeral),
				notify.WithMetrics(app.Metrics),
				notify.WithLogger(app.Logger),
				notify.WithSink(func(_ context.Context, n core.Notification) {
					fmt.Fprintf(out, "[%s] %s: %s\n", n.Priority, n.Title, n.Message)
				}),
			}
			if app.Events != nil {
				opts = append(opts, notify.WithSubscriber(app.Events))
			}
			poller := notify.NewPoller(app.Budget.Notifications, app.State, notify.PollerConfig{
				Interval: app.Config.NotificationPollInterval,
			}, opts...)

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           security.Headers(security.MetricsHeadersConfig())(trace.Middleware(metrics.SetupMetricsRoute(app.Registry))),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						app.Logger.Warn("Metrics server stopped", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			if err := poller.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching notifications every %s. Press Ctrl+C to stop.\n", app.Config.NotificationPollInterval)

			select {
			case <-ctx.Done():
			case <-poller.Done():
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return poller.Stop(stopCtx)
		}),
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}
