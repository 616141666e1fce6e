package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"devbridge-go/internal/config"
	"devbridge-go/internal/credentials"
	"devbridge-go/internal/gate"
	"devbridge-go/internal/httpapi"
	"devbridge-go/internal/logs"
	"devbridge-go/internal/oauth"
	"devbridge-go/internal/observability"
	"devbridge-go/internal/secret"
	"devbridge-go/internal/server"
	"devbridge-go/internal/tools"
	"devbridge-go/internal/upstream"
)

const healthCheckTimeout = 5 * time.Second

func newServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
}

func runServe(parent context.Context, v *viper.Viper) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	resolver := secret.NewResolver()
	if err := resolver.ExpandAll(parent,
		&cfg.GitHub.ClientID, &cfg.GitHub.ClientSecret,
		&cfg.ClickUp.ClientID, &cfg.ClickUp.ClientSecret,
		&cfg.OAuth.StateSecret,
	); err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}

	logger, err := logs.SetupLogger(cfg.Logging, cfg.GitHub.ClientSecret, cfg.ClickUp.ClientSecret, cfg.OAuth.StateSecret)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	sugar := logger.Sugar()

	logger.Info("Starting devbridge",
		zap.String("version", version),
		zap.String("listen", cfg.Listen),
		zap.String("public_base_url", cfg.PublicBaseURL),
		zap.String("github_flow", cfg.GitHub.Flow),
		zap.Bool("github_configured", cfg.GitHubConfigured()),
		zap.Bool("clickup_configured", cfg.ClickUpConfigured()),
		zap.String("credentials_backend", cfg.Credentials.Backend))

	obs, err := observability.NewManager(sugar, observability.Config{
		HealthTimeout:  healthCheckTimeout,
		MetricsEnabled: cfg.Observability.MetricsEnabled,
		Tracing: observability.TracingConfig{
			Enabled:        cfg.Observability.TracingEnabled,
			ServiceName:    cfg.Observability.ServiceName,
			ServiceVersion: version,
			OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
			SampleRate:     cfg.Observability.SampleRate,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		_ = obs.Close(ctx)
	}()
	metrics := obs.Metrics()

	store, err := credentials.Open(cfg, sugar)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close credential store", zap.Error(err))
		}
	}()
	if bolt, ok := store.Pending.(*credentials.BoltTable); ok {
		obs.RegisterHealthChecker(observability.NewBoltHealthChecker("pending_credentials", bolt.DB()))
	}

	sweeper := credentials.NewSweeper(store.Pending, cfg.Credentials.SweepInterval.Std(), sugar, metrics)
	sweeper.Start()
	defer sweeper.Stop()

	claimer := credentials.NewClaimer(store, logger, metrics)
	states, err := oauth.NewStateStore(cfg.OAuth.StateSecret, cfg.OAuth.StateTTL.Std())
	if err != nil {
		return err
	}

	clientOpts := func(base string) upstream.Options {
		return upstream.Options{
			BaseURL: base,
			Timeout: cfg.Upstream.Timeout.Std(),
			Logger:  logger,
			Metrics: metrics,
			Tracing: obs.Tracing(),
		}
	}
	githubAPI := upstream.NewGitHubClient(clientOpts(cfg.Upstream.GitHubAPIURL))
	clickupAPI := upstream.NewClickUpClient(clientOpts(cfg.Upstream.ClickUpAPIURL))

	handlers := oauth.NewHandlers(oauth.Deps{
		Config:     cfg,
		Store:      store,
		States:     states,
		ClickUpAPI: clickupAPI,
		Logger:     logger,
		Metrics:    metrics,
	})

	var device *oauth.DeviceFlow
	if cfg.GitHub.Flow == config.FlowDevice {
		device = oauth.NewDeviceFlow(oauth.DeviceFlowDeps{
			Config:  cfg,
			Store:   store,
			Claimer: claimer,
			Logger:  logger,
			Metrics: metrics,
		})
	}

	mcpServer := server.NewMCPServer(version, logger)
	tools.New(tools.Deps{
		Store:   store,
		Gate:    gate.New(store, logger, metrics, obs.Tracing(), oauth.LoginHints(cfg)),
		GitHub:  githubAPI,
		ClickUp: clickupAPI,
		Device:  device,
		Logger:  logger,
	}).Register(mcpServer)

	router := server.NewRouter(server.RouterDeps{
		MCP:         mcpServer,
		Credentials: store,
		IdleTimeout: cfg.Session.IdleTimeout.Std(),
		Logger:      logger,
		Metrics:     metrics,
	})
	obs.RegisterHealthChecker(observability.NewFuncChecker("sessions", router.Check))

	api := httpapi.NewServer(httpapi.Deps{
		Config:        cfg,
		Sessions:      router,
		Claimer:       claimer,
		OAuth:         handlers,
		Observability: obs,
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Listen, api, router, logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}
