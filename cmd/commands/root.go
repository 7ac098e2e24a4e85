package commands

import (
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskchat/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "taskchat",
		Usage: "Manage your todo list by chatting with it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewGatewayCommand(),
			NewAskCommand(),
			NewTasksCommand(),
			NewConversationsCommand(),
			NewMCPServeCommand(),
		},
	}
}

// loadConfig reads the config file, falling back to defaults when it is
// missing or invalid.
func loadConfig(cmd *cli.Command) *config.Config {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		slog.Warn("config not loaded, using defaults", "path", path, "error", err)
		return config.Default()
	}
	return cfg
}

// setupLogging installs the default logger. Logs always go to stderr.
func setupLogging(cmd *cli.Command, level string) {
	lvl := parseLevel(level)
	if cmd.Bool("debug") {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
