package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/t77yq/cloudmon/internal/config"
	"github.com/t77yq/cloudmon/internal/model"
	"github.com/t77yq/cloudmon/internal/monitor"
	"github.com/t77yq/cloudmon/internal/notify"
	"github.com/t77yq/cloudmon/internal/provider"
	"github.com/t77yq/cloudmon/internal/storage"
)

func main() {
	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect to NATS for the alert event stream
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URLs[0], opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Storage
	metricStore, err := storage.NewSQLiteMetricStore(logger, cfg.Storage.MetricDBPath)
	if err != nil {
		logger.Fatal("Failed to create metric store", zap.Error(err))
	}
	defer metricStore.Close()

	alertStore, err := storage.NewSQLiteAlertStore(logger, cfg.Storage.AlertDBPath)
	if err != nil {
		logger.Fatal("Failed to create alert store", zap.Error(err))
	}
	defer alertStore.Close()

	// Provider sources
	var sources []provider.Source
	for i, name := range cfg.Monitoring.Providers {
		sources = append(sources, provider.NewSimulatedSource(
			providerFromName(name), time.Now().UnixNano()+int64(i)))
	}
	if cfg.Monitoring.SystemSource {
		sources = append(sources, provider.NewSystemSource())
	}
	if cfg.Monitoring.DockerSource {
		dockerSource, err := provider.NewDockerSource()
		if err != nil {
			logger.Warn("Docker source unavailable", zap.Error(err))
		} else {
			defer dockerSource.Close()
			sources = append(sources, dockerSource)
		}
	}

	// Notification channels
	channels := make(map[string]monitor.NotificationChannel)
	if cfg.Channels.Email.Enabled {
		channels["email"] = notify.NewEmailChannel(notify.EmailConfig{
			Host:       cfg.Channels.Email.Host,
			Port:       cfg.Channels.Email.Port,
			Username:   cfg.Channels.Email.Username,
			Password:   cfg.Channels.Email.Password,
			From:       cfg.Channels.Email.From,
			Recipients: cfg.Channels.Email.Recipients,
		}, logger)
	}
	if cfg.Channels.Slack.Enabled {
		channels["slack"] = notify.NewSlackChannel(notify.SlackConfig{
			WebhookURL: cfg.Channels.Slack.WebhookURL,
			Channel:    cfg.Channels.Slack.Channel,
		}, logger)
	}
	if cfg.Channels.Webhook.Enabled {
		channels["webhook"] = notify.NewWebhookChannel(notify.WebhookConfig{
			URL:     cfg.Channels.Webhook.URL,
			Headers: cfg.Channels.Webhook.Headers,
		}, logger)
	}

	// Monitoring engine
	registry := monitor.NewRuleRegistry(alertStore, logger)
	collector := monitor.NewCollector(metricStore, sources, cfg.Monitoring.Retention(), logger)
	evaluator := monitor.NewEvaluator(metricStore, logger)
	lifecycle := monitor.NewLifecycleManager(alertStore, registry, logger)
	dispatcher := monitor.NewDispatcher(channels, logger)

	engine := monitor.NewEngine(collector, registry, evaluator, lifecycle, dispatcher,
		alertStore, js, cfg.Monitoring.CollectionInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		logger.Fatal("Failed to start monitoring engine", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Periodic status reporting
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := engine.Status()
				logger.Info("Engine status",
					zap.Int("active_alerts", status.ActiveAlerts),
					zap.Int("total_rules", status.TotalRules),
					zap.Int("enabled_rules", status.EnabledRules))
			}
		}
	}()

	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	engine.Stop()
	logger.Info("Server shutting down gracefully")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func providerFromName(name string) model.Provider {
	switch model.Provider(name) {
	case model.ProviderAWS, model.ProviderAzure, model.ProviderGCP:
		return model.Provider(name)
	default:
		return model.ProviderAWS
	}
}
