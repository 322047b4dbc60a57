package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nhle/smstask/internal/client"
	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/theme"
	"github.com/nhle/smstask/internal/ui"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and edit tasks through the running server",
	}
	cmd.AddCommand(newTasksListCmd())
	cmd.AddCommand(newTasksAddCmd())
	cmd.AddCommand(newTasksRmCmd())
	cmd.AddCommand(newTasksDoneCmd())
	return cmd
}

// taskCommandEnv is what every tasks subcommand needs.
type taskCommandEnv struct {
	client *client.Client
	owner  string
}

func tasksEnv() (taskCommandEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return taskCommandEnv{}, err
	}
	return taskCommandEnv{client: apiClient(cfg), owner: cfg.Owner()}, nil
}

func newTasksListCmd() *cobra.Command {
	var owner, status string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := tasksEnv()
			if err != nil {
				return err
			}
			return listTasks(cmd.Context(), env.client, owner, status, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only tasks of this owner")
	cmd.Flags().StringVar(&status, "status", "", "only tasks with this status (pending or done)")
	return cmd
}

func newTasksAddCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "add <description>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := tasksEnv()
			if err != nil {
				return err
			}
			if owner == "" {
				owner = env.owner
			}
			created, err := env.client.Create(cmd.Context(), owner, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %d.\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner of the new task (defaults to the configured phone)")
	return cmd
}

func newTasksRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			env, err := tasksEnv()
			if err != nil {
				return err
			}
			deleted, found, err := env.client.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no task has ID %d", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d: %s\n", deleted.ID, deleted.Description)
			return nil
		},
	}
}

func newTasksDoneCmd() *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			env, err := tasksEnv()
			if err != nil {
				return err
			}
			status := model.StatusDone
			if undo {
				status = model.StatusPending
			}
			n, err := env.client.Update(cmd.Context(), id, map[string]any{"status": status})
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("no task has ID %d", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d is %s.\n", id, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the task pending again")
	return cmd
}

func parseTaskID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 1 || id > model.MaxSlots {
		return 0, fmt.Errorf("task ID must be a number from 1 to %d, got %q", model.MaxSlots, arg)
	}
	return id, nil
}

func listTasks(ctx context.Context, c *client.Client, owner, status string, w io.Writer) error {
	var tasks []model.Task
	var err error
	if owner != "" {
		tasks, err = c.ListByOwner(ctx, owner)
	} else {
		tasks, err = c.List(ctx)
	}
	if err != nil {
		return err
	}

	if status != "" {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.Status == status {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}

	_, err = io.WriteString(w, renderTasks(tasks))
	return err
}

// renderTasks formats tasks one per line under a slot counter.
func renderTasks(tasks []model.Task) string {
	var b strings.Builder
	b.WriteString(theme.SlotsStyle(len(tasks)).Render(ui.SlotCounter(len(tasks))))
	b.WriteString("\n")

	if len(tasks) == 0 {
		b.WriteString(theme.HelpStyle.Render("No tasks."))
		b.WriteString("\n")
		return b.String()
	}

	for _, t := range tasks {
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			theme.IDStyle.Render(strconv.Itoa(t.ID)),
			theme.StatusStyle(t.Status).Width(10).Render(t.Status),
			t.Description,
		)
		if t.Owner != "" {
			line += theme.HelpStyle.Render("  " + t.Owner)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
