// Package app assembles the daemon: configuration store, hot-reload
// watcher, the connection re-check scheduler and per-config runtime wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/altafino/inbox-verifier/internal/config"
	"github.com/altafino/inbox-verifier/internal/models"
	"github.com/altafino/inbox-verifier/internal/scheduler"
	"github.com/altafino/inbox-verifier/internal/types"
)

// App represents the daemon.
type App struct {
	logger    *slog.Logger
	scheduler *scheduler.Scheduler
	configs   []*types.Config
	configDir string
	configID  string
	watcher   *config.ConfigWatcher
	wg        sync.WaitGroup
}

// New loads configurations and prepares the daemon services.
func New(logger *slog.Logger, configDir string, configID string) (*App, error) {
	app := &App{
		logger:    logger,
		configDir: configDir,
		configID:  configID,
	}

	if err := config.LoadConfigs(configDir); err != nil {
		return nil, fmt.Errorf("failed to load configs: %w", err)
	}

	if configID != "" {
		cfg, err := config.GetConfig(configID)
		if err != nil {
			return nil, fmt.Errorf("failed to get config %s: %w", configID, err)
		}
		app.configs = []*types.Config{cfg}
	} else {
		app.configs = config.GetEnabledConfigs()
	}

	app.scheduler = scheduler.NewScheduler(logger, app.recheck)

	return app, nil
}

// Start starts all daemon services.
func (a *App) Start() error {
	watcher, err := config.StartWatcher(a.configDir, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	a.watcher = watcher

	a.scheduler.Start()

	for _, cfg := range a.configs {
		if err := a.startServices(cfg); err != nil {
			return err
		}
	}

	a.wg.Add(1)
	go a.watchConfigs()

	return nil
}

// Stop gracefully stops all daemon services.
func (a *App) Stop() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.wg.Wait()
}

func (a *App) startServices(cfg *types.Config) error {
	if err := a.scheduler.UpdateJob(cfg); err != nil {
		a.logger.Error("failed to update scheduler",
			"error", err,
			"id", cfg.Meta.ID,
		)
		return err
	}

	a.logger.Info("started services for configuration",
		"id", cfg.Meta.ID,
		"name", cfg.Meta.Name,
	)
	return nil
}

// recheck is the scheduled job body: test every account connection, repair
// Microsoft tokens, persist status, trim old diagnostics.
func (a *App) recheck(cfg *types.Config) {
	rt, err := BuildRuntime(cfg)
	if err != nil {
		a.logger.Error("failed to build runtime for re-check",
			"config_id", cfg.Meta.ID,
			"error", err,
		)
		return
	}
	defer rt.Close()

	// One operation deadline per account, sequential.
	budget := time.Duration(cfg.Engine.OperationTimeout) * time.Second * time.Duration(len(rt.Accounts)+1)
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	checks := rt.Verifier.CheckAllConnections(ctx, rt.Accounts)

	ok := 0
	for _, c := range checks {
		if c.Status == models.StatusSuccess {
			ok++
		}
	}
	rt.Logger.Info("connection re-check finished",
		"config_id", cfg.Meta.ID,
		"accounts", len(checks),
		"healthy", ok,
	)

	if err := rt.Diags.CleanupOld(); err != nil {
		rt.Logger.Warn("diagnostics cleanup failed", "error", err)
	}
}

func (a *App) watchConfigs() {
	defer a.wg.Done()

	for range a.watcher.ReloadChan() {
		a.logger.Info("reloading services due to configuration change")

		var newConfigs []*types.Config
		if a.configID != "" {
			cfg, err := config.GetConfig(a.configID)
			if err != nil {
				a.logger.Error("failed to get updated config",
					"id", a.configID,
					"error", err,
				)
				continue
			}
			newConfigs = []*types.Config{cfg}
		} else {
			newConfigs = config.GetEnabledConfigs()
		}

		for _, cfg := range newConfigs {
			if err := a.startServices(cfg); err != nil {
				a.logger.Error("failed to update services",
					"config_id", cfg.Meta.ID,
					"error", err,
				)
			}
		}
	}
}
