package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tma_demo_bot/internal/config"
	"tma_demo_bot/internal/dispatch"
	"tma_demo_bot/internal/httpapi"
	"tma_demo_bot/internal/logging"
	"tma_demo_bot/internal/metrics"
	"tma_demo_bot/internal/session"
	"tma_demo_bot/internal/sink"
	"tma_demo_bot/internal/telegram"
)

const (
	httpShutdownTimeout = 10 * time.Second
	storeCloseTimeout   = 5 * time.Second
	getMeTimeout        = 5 * time.Second
)

var processStart = time.Now()

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":         "startup",
		"transport":     cfg.Transport,
		"session_store": cfg.SessionStore,
		"http_port":     cfg.HTTPPort,
	}).Info("configuration loaded")

	if missing := cfg.MissingRequired(); len(missing) > 0 {
		logger.WithFields(logging.Fields{
			"event":   "config_incomplete",
			"missing": missing,
		}).Warn("required settings are missing; webhook updates will be refused")
	}

	sessionStore, closeStore, err := session.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.WithError(err).Error("session store setup error")
		fmt.Fprintf(os.Stderr, "session store setup error: %v\n", err)
		os.Exit(1)
	}

	gateway := metrics.NewGateway(metrics.GatewayConfig{
		BotConfigured:  cfg.TelegramToken != "",
		SinkConfigured: cfg.SheetsConfigured(),
		ProcessStart:   processStart,
		CallTimeout:    cfg.CallTimeout,
	}, sessionStore, newSink(cfg, logger), logger)

	var (
		tgClient  *telegram.Client
		messenger dispatch.Messenger
	)
	if cfg.TelegramToken != "" {
		tgClient, err = telegram.NewClient(cfg, logger)
		if err != nil {
			logger.WithError(err).Error("telegram client setup error")
			fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
			closeSessions(closeStore, logger)
			os.Exit(1)
		}
		messenger = tgClient.Messenger()
		logger.WithField("event", "telegram_ready").Info("telegram client initialized")
	}

	settings := dispatch.SettingsFromConfig(cfg)
	if tgClient != nil {
		settings.BotUsername = botUsername(tgClient, logger)
	}

	dispatcher := dispatch.New(settings, sessionStore, messenger, logger)
	if tgClient != nil {
		tgClient.SetHandler(dispatcher)
	}

	server := httpapi.NewServer(httpapi.Options{
		Config:     cfg,
		Dispatcher: dispatcher,
		Metrics:    gateway,
		Sessions:   sessionStore,
		Logger:     logger,
	})

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(signalCtx)

	g.Go(server.ListenAndServe)

	g.Go(func() error {
		<-gCtx.Done()
		logger.WithField("event", "shutdown_signal").Info("stopping http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if cfg.Transport == config.TransportPolling && tgClient != nil {
		g.Go(func() error {
			tgClient.Start(gCtx)
			if gCtx.Err() == nil {
				logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
				return errors.New("telegram polling stopped unexpectedly")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("service stopped with error")
		closeSessions(closeStore, logger)
		os.Exit(1)
	}

	closeSessions(closeStore, logger)
	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

func newSink(cfg config.Config, logger *logrus.Entry) sink.Sink {
	if !cfg.SheetsConfigured() {
		logger.WithField("event", "sink_disabled").Info("google sheets is not configured; metrics rows are not exported")
		return sink.Nop{}
	}

	sheets, err := sink.NewSheets(context.Background(), cfg)
	if err != nil {
		logger.WithError(err).Warn("google sheets sink setup failed; metrics rows are not exported")
		return sink.Nop{}
	}

	logger.WithFields(logging.Fields{
		"event":    "sink_ready",
		"sheet_id": cfg.GoogleSheetID,
	}).Info("google sheets sink initialized")
	return sheets
}

// botUsername resolves the name matched by "/start@name". On failure only the
// bare command is recognized.
func botUsername(client *telegram.Client, logger *logrus.Entry) string {
	ctx, cancel := context.WithTimeout(context.Background(), getMeTimeout)
	defer cancel()

	name, err := client.Username(ctx)
	if err != nil {
		logger.WithError(err).Warn("could not resolve bot username; /start@name is ignored")
		return ""
	}
	logger.WithFields(logging.Fields{
		"event":        "telegram_identity",
		"bot_username": name,
	}).Info("resolved bot username")
	return name
}

func closeSessions(closeStore session.CloseFunc, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
	defer cancel()

	if err := closeStore(ctx); err != nil {
		logger.WithError(err).Error("session store close error")
		return
	}
	logger.WithField("event", "session_store_closed").Info("session store closed")
}
