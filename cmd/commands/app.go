package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dohr-michael/taskchat/internal/config"
	"github.com/dohr-michael/taskchat/internal/conversations"
	"github.com/dohr-michael/taskchat/internal/models"
	"github.com/dohr-michael/taskchat/internal/resolver"
	"github.com/dohr-michael/taskchat/internal/taskstore"
	"github.com/dohr-michael/taskchat/internal/tools"
)

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	store    *taskstore.SQLiteStore
	registry *tools.Registry
	exec     *tools.Executor
	convs    *conversations.Manager
}

func openApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.TasksDB), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := taskstore.OpenSQLite(cfg.Storage.TasksDB)
	if err != nil {
		return nil, err
	}
	registry := tools.DefaultRegistry()
	return &app{
		cfg:      cfg,
		store:    store,
		registry: registry,
		exec:     tools.NewExecutor(store, cfg.Storage.Timeout.Duration()),
		convs:    conversations.NewManager(conversations.NewFileStore(cfg.Storage.ConversationsDir)),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// loadKeywords reads the configured keyword table, or the defaults.
func loadKeywords(cfg *config.Config) (*resolver.KeywordTable, error) {
	if cfg.Resolver.KeywordsFile == "" {
		return resolver.DefaultKeywords(), nil
	}
	return resolver.LoadKeywords(cfg.Resolver.KeywordsFile)
}

// newResolver builds the intent resolver. Without a default model every
// request goes through the fallback parser.
func (a *app) newResolver(ctx context.Context) (*resolver.Resolver, error) {
	keywords, err := loadKeywords(a.cfg)
	if err != nil {
		return nil, err
	}

	modelRegistry := models.NewRegistry(a.cfg.Models)
	chatModel, err := modelRegistry.Default(ctx)
	switch {
	case errors.Is(err, models.ErrNoDefault):
		slog.Info("no default model configured, using the keyword parser only")
	case err != nil:
		slog.Warn("default model unavailable, using the keyword parser only", "model", modelRegistry.DefaultName(), "error", err)
		chatModel = nil
	}

	return resolver.New(resolver.Options{
		Model:         chatModel,
		ModelName:     modelRegistry.DefaultName(),
		Registry:      a.registry,
		Tasks:         a.store,
		Keywords:      keywords,
		ModelTimeout:  a.cfg.Resolver.ModelTimeout.Duration(),
		MaxRetries:    a.cfg.Resolver.MaxRetries,
		Temperature:   float32(a.cfg.Resolver.Temperature),
		SystemPrompt:  a.cfg.Resolver.SystemPrompt,
		ContextWindow: a.cfg.Resolver.ContextWindow,
	})
}
