package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/urfave/cli/v3"

	taskcallbacks "github.com/dohr-michael/taskchat/internal/callbacks"
	"github.com/dohr-michael/taskchat/internal/config"
	"github.com/dohr-michael/taskchat/internal/dispatch"
	"github.com/dohr-michael/taskchat/internal/events"
	"github.com/dohr-michael/taskchat/internal/gateway"
	"github.com/dohr-michael/taskchat/internal/resolver"
	"github.com/dohr-michael/taskchat/internal/storage"
)

// NewGatewayCommand returns the gateway subcommand.
func NewGatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Start the taskchat gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runGateway,
	}
}

func runGateway(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	setupLogging(cmd, cfg.Events.LogLevel)

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	eventLog := storage.NewEventLogger(filepath.Join(config.DataPath(), "events"), bus)
	defer eventLog.Close()

	callbacks.AppendGlobalHandlers(taskcallbacks.NewEventBusHandler(bus))

	res, err := a.newResolver(ctx)
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}

	orch, err := dispatch.New(dispatch.Config{
		Conversations: a.convs,
		Resolver:      res,
		Executor:      a.exec,
		Registry:      a.registry,
		EventBus:      bus,
	})
	if err != nil {
		return err
	}

	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	reloader.OnReload(func(c *config.Config) {
		kt, err := loadKeywords(c)
		if err != nil {
			slog.Warn("keyword table not reloaded", "path", c.Resolver.KeywordsFile, "error", err)
			return
		}
		res.SetKeywords(kt)
	})
	stopReload := watchReload(reloader)
	defer stopReload()

	server := gateway.NewServer(gateway.Deps{
		Chat:          orch,
		Conversations: a.convs,
		Executor:      a.exec,
		Registry:      a.registry,
		EventBus:      bus,
	}, cfg.Gateway.Host, cfg.Gateway.Port)

	slog.Info("resolver ready", "model", res.HasModel(), "context_window", res.ContextWindow())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// watchReload reloads the config on SIGHUP until the returned stop is called.
func watchReload(r *config.Reloader) (stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sig:
				if err := r.Reload(); err != nil {
					slog.Error("config reload failed", "error", err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}

var _ dispatch.IntentResolver = (*resolver.Resolver)(nil)
