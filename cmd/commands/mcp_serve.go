package commands

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	taskmcp "github.com/dohr-michael/taskchat/internal/mcp"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp-serve",
		Usage: "Expose one user's task tools as an MCP server (stdio)",
		Flags: []cli.Flag{userFlag()},
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:      "filter",
				UsageText: "Comma-separated tool names to expose (empty = all)",
			},
		},
		Action: runMCPServe,
	}
}

func runMCPServe(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	// stdout is the MCP transport; stay quiet on stderr unless asked.
	setupLogging(cmd, "warn")

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := cmd.StringArg("filter")
	slog.Debug("starting MCP server", "filter", filter, "user_id", cmd.String("user"))

	server := taskmcp.NewMCPServer(a.registry, a.exec, cmd.String("user"), filter)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
