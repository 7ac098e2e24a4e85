package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	wsclient "github.com/dohr-michael/taskchat/clients/ws"
	wsprotocol "github.com/dohr-michael/taskchat/internal/gateway/ws"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send a message to the gateway and print the confirmation",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway WebSocket URL",
				Value: "ws://127.0.0.1:18430/api/ws",
			},
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User id to act as",
				Sources:  cli.EnvVars("TASKCHAT_USER"),
				Required: true,
			},
			&cli.StringFlag{
				Name:  "conversation",
				Usage: "Conversation id to continue (empty = latest active)",
			},
			&cli.BoolFlag{
				Name:  "events",
				Usage: "Print pipeline events to stderr",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Response timeout in seconds",
				Value: 60,
			},
		},
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	message := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("usage: taskchat ask --user <id> <message>")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cmd.Int("timeout"))*time.Second)
	defer cancel()

	client, err := wsclient.Dial(ctx, cmd.String("gateway"), cmd.String("user"))
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer client.Close()

	if cmd.Bool("events") {
		client.OnEvent = func(f wsprotocol.Frame) {
			fmt.Fprintf(os.Stderr, "event: %s %s\n", f.Event, f.Payload)
		}
	}

	resp, err := client.Ask(ctx, message, cmd.String("conversation"))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timeout waiting for response")
		}
		return err
	}

	if cmd.String("conversation") == "" {
		fmt.Fprintf(os.Stderr, "conversation: %s\n", resp.ConversationID)
	}
	fmt.Fprintln(os.Stdout, resp.ConfirmationMessage)
	return nil
}
