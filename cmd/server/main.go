package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/0xPuncker/chronos-console/internal/api"
	"github.com/0xPuncker/chronos-console/internal/chronos"
	"github.com/0xPuncker/chronos-console/internal/config"
	"github.com/0xPuncker/chronos-console/internal/cron"
	"github.com/0xPuncker/chronos-console/internal/loader"
	"github.com/0xPuncker/chronos-console/internal/notifications"
	"github.com/0xPuncker/chronos-console/internal/store"
	"github.com/dimiro1/banner"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

const bannerText = `
{{ .Title "Chronos Console" "" 0 }}
{{ .AnsiBackground.BrightBlue }}{{ .AnsiColor.White }}
{{ .AnsiReset }}
`

func main() {
	banner.Init(colorable.NewColorableStdout(), true, true, strings.NewReader(bannerText))

	configPath := flag.String("config", "config/config.json", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Debugf("Chronos agent URL: %s", cfg.Chronos.URL)

	client := chronos.NewClient(
		cfg.Chronos.URL,
		config.Duration(cfg.Chronos.Timeout, 5*time.Second),
		config.Duration(cfg.Chronos.CacheTTL, 30*time.Second),
		logger,
	)

	st := store.New(client, logger)
	st.SetUseLocalTime(cfg.Console.UseLocalTime)

	ld := loader.New(logger)
	ld.OnChange(func(active bool) {
		logger.WithField("reasons", ld.Reasons()).Debugf("Loading indicator active: %t", active)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier api.Notifier
	slack, err := notifications.NewSlackService(cfg.Slack.WebhookURL, logger)
	if err != nil {
		logger.Warnf("Failed to initialize Slack service: %v", err)
	} else {
		notifier = notifications.NewNotificationService(slack)

		startupNotifier := notifications.NewStartupNotifier(client, slack, cfg.Chronos.URL, logger)
		go func() {
			if err := startupNotifier.NotifyStartup(ctx); err != nil {
				logger.Warnf("Failed to send startup notification: %v", err)
			}
		}()
	}

	handler, err := api.NewHandler(st, ld, logger, cfg, notifier)
	if err != nil {
		logger.Fatalf("Failed to create handler: %v", err)
	}

	if err := handler.Scheduler.RunNow(cron.RefreshJobsTask); err != nil {
		logger.Warnf("Failed to load initial job list: %v", err)
	}

	if err := handler.Scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	if err := api.StartServer(ctx, handler, cfg.Server); err != nil {
		logger.Errorf("Server stopped with error: %v", err)
	}

	logger.Info("Shutting down...")
	handler.Scheduler.Stop()
	st.Wait()
	logger.Info("Server stopped")
}
