package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/hiroki-koketsu/focusflow/internal/model"
	"github.com/hiroki-koketsu/focusflow/internal/view"
	"github.com/urfave/cli/v3"
)

// withRuntime opens the store for one command and closes it afterwards.
func withRuntime(ctx context.Context, flags *Flags, fn func(rt *Runtime) error) error {
	rt, err := flags.Open(ctx, flags.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			flags.Logger.Warn("failed to close store", slog.Any("error", err))
		}
	}()
	return fn(rt)
}

type LsCmd struct {
	flags *Flags

	// flags
	filter string
	sort   string
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags) *LsCmd {
	return &LsCmd{flags: flags}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "ls",
		Usage:     "List tasks",
		UsageText: "focusflow ls [--filter all|pending|completed] [--sort date|priority|status]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "filter",
				Aliases:     []string{"f"},
				Usage:       "which tasks to show (all, pending, completed)",
				Value:       "all",
				Destination: &cmd.filter,
			},
			&cli.StringFlag{
				Name:        "sort",
				Aliases:     []string{"s"},
				Usage:       "sort order (date, priority, status)",
				Value:       "date",
				Destination: &cmd.sort,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	mode, err := model.ParseFilterMode(cmd.filter)
	if err != nil {
		return err
	}
	key, err := model.ParseSortKey(cmd.sort)
	if err != nil {
		return err
	}

	return withRuntime(ctx, cmd.flags, func(rt *Runtime) error {
		tasks := view.Display(rt.Tasks.List(ctx), mode, key)
		if len(tasks) == 0 {
			_, _ = fmt.Fprintln(c.Root().Writer, "No tasks found")
			return nil
		}

		w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tDONE\tDUE\tPRIORITY\tTITLE")
		for _, t := range tasks {
			done := " "
			if t.Completed {
				done = "x"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, done, t.DueDate, t.Priority, t.Title)
		}
		return w.Flush()
	})
}

type AddCmd struct {
	flags *Flags

	// flags
	title       string
	description string
	due         string
	priority    string
}

// NewAddCmd creates a new add command
func NewAddCmd(flags *Flags) *AddCmd {
	return &AddCmd{flags: flags}
}

// Register adds the add command to the application
func (cmd *AddCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "add",
		Usage:     "Add a task",
		UsageText: "focusflow add --title TITLE [--due YYYY-MM-DD] [--priority low|medium|high] [--description TEXT]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "title",
				Aliases:     []string{"t"},
				Usage:       "task title",
				Required:    true,
				Destination: &cmd.title,
			},
			&cli.StringFlag{
				Name:        "description",
				Aliases:     []string{"d"},
				Usage:       "optional details",
				Destination: &cmd.description,
			},
			&cli.StringFlag{
				Name:        "due",
				Usage:       "due date as YYYY-MM-DD (defaults to today)",
				Destination: &cmd.due,
			},
			&cli.StringFlag{
				Name:        "priority",
				Aliases:     []string{"p"},
				Usage:       "low, medium or high",
				Value:       "medium",
				Destination: &cmd.priority,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *AddCmd) run(ctx context.Context, c *cli.Command) error {
	return withRuntime(ctx, cmd.flags, func(rt *Runtime) error {
		due := cmd.due
		if due == "" {
			due = model.Today(time.Now(), rt.Location)
		}
		p, _ := model.ParsePriority(cmd.priority)

		task, err := rt.Tasks.Add(ctx, model.TaskInput{
			Title:       cmd.title,
			Description: cmd.description,
			DueDate:     due,
			Priority:    p,
		})
		if err != nil {
			return describeInvalid(err)
		}

		_, _ = fmt.Fprintln(c.Root().Writer, task.ID)
		return nil
	})
}

type ToggleCmd struct {
	flags *Flags
}

// NewToggleCmd creates a new toggle command
func NewToggleCmd(flags *Flags) *ToggleCmd {
	return &ToggleCmd{flags: flags}
}

// Register adds the toggle command to the application
func (cmd *ToggleCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "toggle",
		Usage:     "Mark a task done, or pending again",
		UsageText: "focusflow toggle <id>",
		Action:    cmd.run,
	})

	return app
}

func (cmd *ToggleCmd) run(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: focusflow toggle <id>")
	}

	id := c.Args().Get(0)
	return withRuntime(ctx, cmd.flags, func(rt *Runtime) error {
		task, found, err := rt.Tasks.ToggleCompletion(ctx, id)
		if err != nil {
			return fmt.Errorf("toggle task: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: %s", model.ErrTaskNotFound, id)
		}

		state := "pending"
		if task.Completed {
			state = "completed"
		}
		_, _ = fmt.Fprintln(c.Root().Writer, state)
		return nil
	})
}

type RmCmd struct {
	flags *Flags
}

// NewRmCmd creates a new rm command
func NewRmCmd(flags *Flags) *RmCmd {
	return &RmCmd{flags: flags}
}

// Register adds the rm command to the application
func (cmd *RmCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "rm",
		Usage:     "Delete a task",
		UsageText: "focusflow rm <id>",
		Action:    cmd.run,
	})

	return app
}

func (cmd *RmCmd) run(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: focusflow rm <id>")
	}

	id := c.Args().Get(0)
	return withRuntime(ctx, cmd.flags, func(rt *Runtime) error {
		found, err := rt.Tasks.Delete(ctx, id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if !found {
			cmd.flags.Logger.Debug("nothing to delete", slog.String("id", id))
		}

		_, _ = fmt.Fprintln(c.Root().Writer, "deleted")
		return nil
	})
}

type StatsCmd struct {
	flags *Flags
}

// NewStatsCmd creates a new stats command
func NewStatsCmd(flags *Flags) *StatsCmd {
	return &StatsCmd{flags: flags}
}

// Register adds the stats command to the application
func (cmd *StatsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "stats",
		Usage:     "Show progress statistics",
		UsageText: "focusflow stats",
		Action:    cmd.run,
	})

	return app
}

func (cmd *StatsCmd) run(ctx context.Context, c *cli.Command) error {
	return withRuntime(ctx, cmd.flags, func(rt *Runtime) error {
		s := view.Statistics(rt.Tasks.List(ctx), model.Today(time.Now(), rt.Location))

		w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Total\t%d\n", s.Total)
		_, _ = fmt.Fprintf(w, "Completed\t%d\n", s.Completed)
		_, _ = fmt.Fprintf(w, "Pending\t%d\n", s.Pending)
		_, _ = fmt.Fprintf(w, "Progress\t%d%%\n", s.Progress)
		_, _ = fmt.Fprintf(w, "Today\t%d/%d\n", s.CompletedToday, s.TotalToday)
		return w.Flush()
	})
}

// describeInvalid turns validation failures into one readable error.
func describeInvalid(err error) error {
	var fieldErrs criterio.FieldErrors
	if !errors.Is(err, model.ErrInvalidTask) || !errors.As(err, &fieldErrs) {
		return fmt.Errorf("add task: %w", err)
	}

	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, fmt.Sprintf("%s %v", fe.Field, fe.Err))
	}
	return fmt.Errorf("%w: %s", model.ErrInvalidTask, strings.Join(details, "; "))
}
