package switchboard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/switchboard-dev/switchboard/pkg/a2a"
	"github.com/switchboard-dev/switchboard/pkg/agent"
	"github.com/switchboard-dev/switchboard/pkg/agentconfig"
	"github.com/switchboard-dev/switchboard/pkg/audit"
	"github.com/switchboard-dev/switchboard/pkg/config"
	"github.com/switchboard-dev/switchboard/pkg/gateway"
	"github.com/switchboard-dev/switchboard/pkg/session"
	"github.com/switchboard-dev/switchboard/pkg/store"
	"github.com/switchboard-dev/switchboard/pkg/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Switchboard backend",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format, nil)
	logger.Info("starting switchboard",
		slog.String("version", version),
		slog.Int("port", cfg.Gateway.Port),
		slog.String("bind", cfg.Gateway.Bind),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = telemetry.WithLogger(ctx, logger)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown", slog.Any("error", err))
		}
	}()

	sessionStore, err := session.NewStore(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer sessionStore.Close()
	sessions := session.NewService(sessionStore)

	adminStore, err := store.New(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening admin store: %w", err)
	}
	defer adminStore.Close()

	auditLog, err := audit.New(adminStore.DB())
	if err != nil {
		return fmt.Errorf("initializing audit log: %w", err)
	}
	cfgStore, err := agentconfig.New(adminStore.DB())
	if err != nil {
		return fmt.Errorf("initializing agent config store: %w", err)
	}

	rpc := a2a.NewService(a2a.ServiceConfig{
		Sessions: sessions,
		Runtime:  agent.NewEchoRuntime(sessions),
		AuditLog: auditLog,
		Logger:   logger,
		AppName:  cfg.Agent.Name,
	})

	card := buildAgentCard(ctx, cfg, cfgStore)
	rpcHandler := a2a.NewHandler(card, rpc)
	adminHandler := agentconfig.NewHandler(cfgStore, auditLog, logger)

	gw := gateway.New(gateway.Config{
		Bind:          cfg.Gateway.Bind,
		Port:          cfg.Gateway.Port,
		Logger:        logger,
		RPCHandler:    rpcHandler,
		AdminHandler:  adminHandler,
		AdminPassword: cfg.AdminPassword(),
		Ready:         sessionStore.Ping,
	})

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildAgentCard merges the static card from config with any stored
// admin overrides.
func buildAgentCard(ctx context.Context, cfg *config.Config, cfgStore *agentconfig.Store) *a2a.AgentCard {
	card := &a2a.AgentCard{
		Name:        cfg.Agent.Name,
		Description: cfg.Agent.Description,
		URL:         cfg.Gateway.ExternalURL,
		Version:     cfg.Agent.Version,
		Capabilities: a2a.Capabilities{
			Streaming:         true,
			PushNotifications: true,
		},
		DefaultInputModes:  cfg.Agent.InputModes,
		DefaultOutputModes: cfg.Agent.OutputModes,
		Skills: []a2a.Skill{
			{ID: "chat", Name: "Chat", Description: "General conversational assistance"},
		},
	}

	if info, err := cfgStore.Get(ctx); err == nil && info != nil {
		card.Name = info.Name
		if info.Description != "" {
			card.Description = info.Description
		}
	}
	return card
}
