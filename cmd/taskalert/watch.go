package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskalert/internal/app"
	"taskalert/internal/config"
	"taskalert/internal/notify"
	"taskalert/internal/prompt"
	"taskalert/internal/telemetry"
)

func watchCmd(g *globalOpts) *cobra.Command {
	var yes, no bool
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch active tasks and raise deadline alerts until interrupted",
		Long: `Watch re-checks the active tasks every check interval (30s by default).
A task due within the upcoming window gets one notification. An overdue task
rings the alarm and asks whether to mark it complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes && no {
				return errors.New("--yes and --no are mutually exclusive")
			}

			out := cmd.OutOrStdout()
			a, err := g.openApp(cmd, func(cfg *config.Config, opts *app.Options) error {
				n, err := notify.New(cfg.Notifications.Backend, out)
				if err != nil {
					return err
				}
				opts.Notifier = n
				opts.Alarm = notify.Silent{}
				if cfg.Alarm.IsEnabled() {
					opts.Alarm = notify.NewBell(cmd.ErrOrStderr(), cfg.Alarm.BellInterval.Std())
				}
				opts.Confirmer = confirmerFor(cmd, yes, no)
				return nil
			})
			if err != nil {
				return err
			}
			defer a.Close()

			greet(out, a.Player)
			fmt.Fprintf(out, "Watching %d active tasks. Press Ctrl+C to stop.\n", len(a.Tasks.Active().Tasks))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			if err := a.Run(ctx); err != nil {
				return err
			}

			stats, err := a.SessionStats()
			if err != nil {
				return err
			}
			printSessionStats(out, stats)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Answer yes to every overdue prompt")
	cmd.Flags().BoolVarP(&no, "no", "n", false, "Answer no to every overdue prompt")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

func confirmerFor(cmd *cobra.Command, yes, no bool) prompt.Confirmer {
	switch {
	case yes:
		s := prompt.NewScripted()
		s.Default = true
		return s
	case no:
		return prompt.NewScripted()
	default:
		return prompt.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
	}
}

func printSessionStats(out io.Writer, s telemetry.Stats) {
	fmt.Fprintln(out, "\nSession summary")
	fmt.Fprintf(out, "  Upcoming alerts: %d\n", s.UpcomingAlerts)
	fmt.Fprintf(out, "  Overdue alerts:  %d\n", s.OverdueAlerts)
	fmt.Fprintf(out, "  Completed:       %d\n", s.TasksCompleted)
	if s.AlertsConfirmed+s.AlertsDismissed > 0 {
		fmt.Fprintf(out, "  Confirmed:       %.0f%%\n", s.ConfirmationRate*100)
	}
}
