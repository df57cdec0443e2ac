package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskalert/internal/prompt"
	"taskalert/internal/task"
)

const displayLayout = "Mon Jan 2 15:04"

func addCmd(g *globalOpts) *cobra.Command {
	var title, due, description string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			dueAt, err := task.ParseDue(due, time.Now(), time.Local)
			if err != nil {
				return err
			}
			t, err := a.AddTask(title, description, dueAt)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %q due %s\n", shortID(t.ID), t.Title, t.DueDate.Local().Format(displayLayout))
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Task title")
	cmd.Flags().StringVarP(&due, "due", "d", "", "Due date: 2006-01-02T15:04, RFC 3339 or +duration")
	cmd.Flags().StringVar(&description, "description", "", "Optional description")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("due")

	return cmd
}

func editCmd(g *globalOpts) *cobra.Command {
	var title, due, description string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an active task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.Tasks.Resolve(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("title") {
				t.Title = title
			}
			if cmd.Flags().Changed("description") {
				t.Description = description
			}
			if cmd.Flags().Changed("due") {
				if t.DueDate, err = task.ParseDue(due, time.Now(), time.Local); err != nil {
					return err
				}
			}

			t, err = a.EditTask(t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s %q due %s\n", shortID(t.ID), t.Title, t.DueDate.Local().Format(displayLayout))
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&due, "due", "d", "", "New due date")
	cmd.Flags().StringVar(&description, "description", "", "New description")

	return cmd
}

func rmCmd(g *globalOpts) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an active task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.Tasks.Resolve(args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := prompt.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout()).
					Confirm(cmd.Context(), fmt.Sprintf("Delete task %q?", t.Title))
				if err != nil || !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Kept.")
					return err
				}
			}
			if a.RemoveTask(t.ID) {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %q\n", shortID(t.ID), t.Title)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func doneCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark an active task as complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.Tasks.Resolve(args[0])
			if err != nil {
				return err
			}
			if _, ok := a.CompleteTask(t.ID); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Completed %s %q\n", shortID(t.ID), t.Title)
			}
			return nil
		},
	}
}

func listCmd(g *globalOpts) *cobra.Command {
	var completed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			greet(out, a.Player)
			if completed {
				printCompleted(out, a.Tasks.Completed())
				return nil
			}
			printActive(out, a.Tasks.Active().Tasks, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&completed, "completed", "c", false, "Show completed tasks")
	return cmd
}

func printActive(out io.Writer, tasks []task.Task, now time.Time) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No active tasks.")
		return
	}
	for _, t := range tasks {
		line := fmt.Sprintf("%s  %s  %s", shortID(t.ID), t.DueDate.Local().Format(displayLayout), t.Title)
		if label := t.Status(now).Label(); label != "" {
			line += "  [" + label + "]"
		}
		fmt.Fprintln(out, line)
		if t.Description != "" {
			fmt.Fprintf(out, "          %s\n", t.Description)
		}
	}
}

func printCompleted(out io.Writer, tasks []task.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No completed tasks.")
		return
	}
	for _, t := range tasks {
		done := ""
		if t.CompletedAt != nil {
			done = t.CompletedAt.Local().Format(displayLayout)
		}
		fmt.Fprintf(out, "%s  done %s  %s\n", shortID(t.ID), done, t.Title)
	}
}

func statsCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts and completion rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.Tasks.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Task Statistics")
			fmt.Fprintln(out, strings.Repeat("=", 24))
			fmt.Fprintf(out, "  Active:          %d\n", s.Active)
			fmt.Fprintf(out, "  Completed:       %d\n", s.Completed)
			fmt.Fprintf(out, "  Total:           %d\n", s.Total)
			fmt.Fprintf(out, "  Completion rate: %.0f%%\n", s.CompletionRate)
			return nil
		},
	}
}

func exportCmd(g *globalOpts) *cobra.Command {
	var ics, asJSON bool
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export active tasks as an iCalendar feed or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ics == asJSON {
				return errors.New("choose exactly one format: --ics or --json")
			}

			a, err := g.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var body string
			active := a.Tasks.Active().Tasks
			if ics {
				if body, err = task.BuildCalendarICS(active, time.Now()); err != nil {
					return err
				}
			} else {
				b, err := json.MarshalIndent(active, "", "  ")
				if err != nil {
					return err
				}
				body = string(b) + "\n"
			}

			if outPath == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			return os.WriteFile(outPath, []byte(body), 0o644)
		},
	}

	cmd.Flags().BoolVar(&ics, "ics", false, "iCalendar with a reminder before each deadline")
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON array of active tasks")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to file instead of stdout")
	return cmd
}

func resetCmd(g *globalOpts) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all tasks and your name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if !yes {
				ok, err := prompt.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout()).
					Confirm(cmd.Context(), "Are you sure you want to reset? This will clear all tasks and your name.")
				if err != nil || !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing changed.")
					return err
				}
			}
			if err := a.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Reset complete.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

