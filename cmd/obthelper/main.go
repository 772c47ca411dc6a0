package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/config"
	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/service"
	"github.com/klappy/obt-helper-gpt/internal/store"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/internal/tracing"
	"github.com/klappy/obt-helper-gpt/internal/usage"
	"github.com/klappy/obt-helper-gpt/pkg/llm"
	"github.com/klappy/obt-helper-gpt/pkg/twilio"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("OBT Helper %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting OBT Helper")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		logger.SetLevel(logrus.InfoLevel)
	}

	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	provider, err := newStoreProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer provider.Close()

	gateway := llm.NewClient(llm.ClientConfig{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		DefaultModel: cfg.OpenAI.DefaultModel,
		Timeout:      time.Duration(cfg.OpenAI.TimeoutSec) * time.Second,
	})

	var sender twilio.Sender
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		sender, err = twilio.NewClient(twilio.Config{
			AccountSID:  cfg.Twilio.AccountSID,
			AuthToken:   cfg.Twilio.AuthToken,
			PhoneNumber: cfg.Twilio.PhoneNumber,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Twilio client: %w", err)
		}
	} else {
		logger.Warn("Twilio not configured, outbound WhatsApp messages will be dropped")
		sender = twilio.NewNoopSender(logger)
	}

	catalog := tools.NewCatalog(provider.Namespace(store.NamespaceTools), logger)
	ledger := usage.NewLedger(provider.Namespace(store.NamespaceUsage), logger)
	governor := service.NewCostGovernor(ledger, catalog, logger)

	sessions := service.NewSessionStore(
		provider.Namespace(store.NamespaceSessions),
		provider.Namespace(store.NamespaceSummaries),
		gateway,
		cfg.Session,
		logger,
	)

	linking := service.NewLinkingService(
		provider.Namespace(store.NamespaceLinkCodes),
		provider.Namespace(store.NamespaceSessions),
		sender,
		logger,
	)

	mirror := service.NewMirrorService(provider.Namespace(store.NamespaceSync), sender, logger)
	inference := service.NewToolInference(catalog, gateway, logger)

	whatsappSvc := service.NewWhatsAppService(
		sessions, catalog, inference, governor, ledger, linking, mirror, gateway, sender, logger,
	)
	chatSvc := service.NewChatService(catalog, governor, ledger, linking, mirror, gateway, logger)

	// Daily maintenance: stale session and mirror record cleanup.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@daily", func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		removed, err := sessions.CleanupInactive(sweepCtx, cfg.Session.CleanupAfterDays)
		if err != nil {
			logger.WithError(err).Warn("Session cleanup failed")
		} else if removed > 0 {
			logger.WithField("removed", removed).Info("Cleaned up inactive sessions")
		}

		if swept := mirror.SweepStale(sweepCtx); swept > 0 {
			logger.WithField("removed", swept).Info("Cleaned up stale mirror records")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule cleanup job: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := NewServer(cfg, whatsappSvc, chatSvc, linking, mirror, sessions, catalog, ledger, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func newStoreProvider(ctx context.Context, cfg *models.Config) (store.Provider, error) {
	switch cfg.Store.Backend {
	case "s3":
		return store.NewS3Provider(ctx, store.S3Config{
			Bucket:   cfg.Store.Bucket,
			Prefix:   cfg.Store.Prefix,
			Region:   cfg.Store.Region,
			Endpoint: cfg.Store.Endpoint,
		})
	default:
		return store.NewSQLiteProvider(cfg.Store.Path)
	}
}
