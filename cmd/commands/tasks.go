package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskchat/internal/taskstore"
	"github.com/dohr-michael/taskchat/internal/tools"
)

func userFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "User id whose data to show",
		Sources:  cli.EnvVars("TASKCHAT_USER"),
		Required: true,
	}
}

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect a user's tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "status", Usage: "all, pending or completed"},
					&cli.StringFlag{Name: "priority", Usage: "low, medium or high"},
					&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "Text to look for in title or description"},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Flags:     []cli.Flag{userFlag()},
				Action:    runTasksShow,
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	setupLogging(cmd, cfg.Events.LogLevel)

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.exec.Execute(ctx, cmd.String("user"), tools.ListTasks{
		Status:   taskstore.Status(cmd.String("status")),
		Priority: taskstore.Priority(cmd.String("priority")),
		Search:   cmd.String("search"),
	})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(res.Tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDONE\tPRIORITY\tCREATED\tTITLE\tTAGS")
	for _, t := range res.Tasks {
		done := " "
		if t.Completed {
			done = "x"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			done,
			t.Priority,
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
			t.Title,
			strings.Join(t.Tags, ","),
		)
	}
	return w.Flush()
}

func runTasksShow(ctx context.Context, cmd *cli.Command) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(cmd.Args().First(), "#"), 10, 64)
	if err != nil {
		return fmt.Errorf("usage: taskchat tasks show --user <id> <task_id>")
	}

	cfg := loadConfig(cmd)
	setupLogging(cmd, cfg.Events.LogLevel)

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.store.Get(ctx, cmd.String("user"), id)
	if err != nil {
		return fmt.Errorf("task %d: %w", id, err)
	}

	fmt.Printf("ID:          %d\n", t.ID)
	fmt.Printf("Title:       %s\n", t.Title)
	fmt.Printf("Completed:   %t\n", t.Completed)
	fmt.Printf("Priority:    %s\n", t.Priority)
	if len(t.Tags) > 0 {
		fmt.Printf("Tags:        %s\n", strings.Join(t.Tags, ", "))
	}
	fmt.Printf("Created:     %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:     %s\n", t.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}
	return nil
}
