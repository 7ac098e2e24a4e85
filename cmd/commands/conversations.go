package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewConversationsCommand returns the conversations subcommand.
func NewConversationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "conversations",
		Usage: "Inspect a user's conversations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List conversations",
				Flags: []cli.Flag{
					userFlag(),
					&cli.BoolFlag{Name: "all", Usage: "Include archived conversations"},
				},
				Action: runConversationsList,
			},
			{
				Name:      "show",
				Usage:     "Show messages in a conversation",
				ArgsUsage: "<conversation_id>",
				Flags: []cli.Flag{
					userFlag(),
					&cli.IntFlag{Name: "limit", Usage: "Number of recent messages (0 = all)"},
				},
				Action: runConversationsShow,
			},
		},
		DefaultCommand: "list",
	}
}

func runConversationsList(_ context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	setupLogging(cmd, cfg.Events.LogLevel)

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.convs.List(cmd.String("user"), cmd.Bool("all"))
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTIVE\tMESSAGES\tUPDATED")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%t\t%d\t%s\n",
			c.ID,
			c.Active,
			c.MessageCount,
			c.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runConversationsShow(_ context.Context, cmd *cli.Command) error {
	convID := cmd.Args().First()
	if convID == "" {
		return fmt.Errorf("usage: taskchat conversations show --user <id> <conversation_id>")
	}

	cfg := loadConfig(cmd)
	setupLogging(cmd, cfg.Events.LogLevel)

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	msgs, err := a.convs.Recent(cmd.String("user"), convID, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	if len(msgs) == 0 {
		fmt.Println("No messages in this conversation.")
		return nil
	}

	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Role, m.Content)
	}
	return nil
}
