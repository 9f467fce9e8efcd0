package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/steward-bot/steward/internal/bus"
	"github.com/steward-bot/steward/internal/channels"
	"github.com/steward-bot/steward/internal/config"
	"github.com/steward-bot/steward/internal/engine"
	"github.com/steward-bot/steward/internal/orchestrator"
	"github.com/steward-bot/steward/internal/quota"
	"github.com/steward-bot/steward/internal/scheduler"
	"github.com/steward-bot/steward/internal/session"
	"github.com/steward-bot/steward/internal/tools"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "steward",
		Short:         "Channel-scoped task scheduler and session orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default ~/.steward/config.json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			setupLogging(cfg)
			return run(cfg)
		},
	}
	rootCmd.AddCommand(runCmd)
	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	cfg, err := config.Load()
	if errors.Is(err, fs.ErrNotExist) {
		// No config file yet: defaults plus env overrides.
		return config.LoadFromReader(strings.NewReader("{}"))
	}
	return cfg, err
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng, err := engine.New(cfg.Engine)
	if err != nil {
		return err
	}

	sessions, err := session.Open(cfg.Sessions.DBPath, eng)
	if err != nil {
		return err
	}
	defer sessions.Close()

	sweepInterval, err := cfg.SweepInterval(24 * time.Hour)
	if err != nil {
		return err
	}
	sweeper := session.NewSweeper(sessions, sweepInterval, cfg.Sessions.ArchiveAfterDays)

	gate := quota.NewGate(
		quota.NewHTTPAuthority(cfg.Quota.BaseURL, cfg.Quota.APIKey),
		cfg.Quota.FailOpen,
	)

	b := bus.New(0)
	chManager := channels.NewManager(b)
	if err := addTransports(cfg, chManager); err != nil {
		return err
	}

	store := scheduler.NewStore(filepath.Join(cfg.Workspace, "tasks"), nil)
	sched := scheduler.New(scheduler.Config{
		Store:    store,
		Gate:     gate,
		Sessions: sessions,
		Invoker:  eng,
		Notifier: chManager,
	})

	registry := tools.NewRegistry()
	registry.Register(tools.NewManageScheduleTool(sched, cfg.Scheduler.Timezone))

	orch := orchestrator.New(orchestrator.Config{
		Bus:      b,
		Gate:     gate,
		Sessions: sessions,
		Invoker:  eng,
		Registry: registry,
	})

	restored, err := sched.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to restore scheduled tasks: %w", err)
	}
	active, err := sessions.ActiveCount(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("tasks", restored).Int("activeSessions", active).Msg("state restored")

	sched.Start()
	sweeper.Start(ctx)
	go b.DispatchOutbound(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- orch.Run(ctx) }()

	if err := chManager.StartAll(ctx); err != nil {
		cancel()
		return err
	}
	log.Info().Msg("steward running")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("shutting down")
	sched.StopAll()
	sweeper.Stop()
	if err := chManager.StopAll(); err != nil {
		log.Error().Err(err).Msg("transport shutdown failed")
	}
	return nil
}

func addTransports(cfg *config.Config, m *channels.Manager) error {
	add := func(name string, c any) error {
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return m.AddTransport(name, raw)
	}
	if cfg.Channels.Discord.Token != "" {
		if err := add("discord", cfg.Channels.Discord); err != nil {
			return err
		}
	}
	if cfg.Channels.Telegram.Token != "" {
		if err := add("telegram", cfg.Channels.Telegram); err != nil {
			return err
		}
	}
	if cfg.Channels.Slack.BotToken != "" {
		if err := add("slack", cfg.Channels.Slack); err != nil {
			return err
		}
	}
	return nil
}
