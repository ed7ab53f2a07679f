package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/logger"
	"docqa/internal/worker"
)

func main() {
	// Initialize structured logger
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 2. Infrastructure
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer deps.DB.Close()
	defer deps.NSQProducer.Stop()

	// 3. Application
	application, err := app.New(ctx, cfg, deps.DB, deps.Index, deps.Blobs, deps.NSQProducer)
	if err != nil {
		return fmt.Errorf("app init failed: %w", err)
	}

	// 4. Worker (Asset Consumer)
	if cfg.EnableIngestWorker {
		consumer, err := startConsumer(cfg, application.AssetConsumer, log)
		if err != nil {
			return err
		}
		defer consumer.Stop()
	}

	// 5. Start Server
	return application.Run(ctx)
}

func startConsumer(cfg *config.Config, handler nsq.Handler, log *slog.Logger) (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxAttempts = worker.DefaultMaxAttempts
	nsqCfg.MaxInFlight = max(1, cfg.IngestionConcurrency)

	consumer, err := nsq.NewConsumer(config.TopicIngestAsset, config.ChannelIngestWorker, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ consumer: %w", err)
	}
	consumer.SetLogger(slogNSQLogger{log}, nsq.LogLevelWarning)
	consumer.AddConcurrentHandlers(handler, max(1, cfg.IngestionConcurrency))

	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect to NSQLookupd", "error", err)
		if err := consumer.ConnectToNSQD(cfg.NSQDHost); err != nil {
			consumer.Stop()
			return nil, fmt.Errorf("failed to connect to nsqd: %w", err)
		}
	}
	slog.Info("NSQ asset consumer connected", "topic", config.TopicIngestAsset, "channel", config.ChannelIngestWorker)
	return consumer, nil
}

// slogNSQLogger routes go-nsq's internal logging through slog.
type slogNSQLogger struct {
	log *slog.Logger
}

func (l slogNSQLogger) Output(calldepth int, s string) error {
	l.log.Warn(s, "component", "nsq")
	return nil
}
