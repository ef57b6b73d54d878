// Package main provides the entry point for MCLog Companion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graaaaa/mclog-companion/internal/api"
	"github.com/graaaaa/mclog-companion/internal/app"
	"github.com/graaaaa/mclog-companion/internal/appinfo"
	"github.com/graaaaa/mclog-companion/internal/config"
	"github.com/graaaaa/mclog-companion/internal/event"
	"github.com/graaaaa/mclog-companion/internal/ingest"
	"github.com/graaaaa/mclog-companion/internal/logging"
	"github.com/graaaaa/mclog-companion/internal/metrics"
	"github.com/graaaaa/mclog-companion/internal/notify"
	"github.com/graaaaa/mclog-companion/internal/scheduler"
	"github.com/graaaaa/mclog-companion/internal/singleinstance"
	"github.com/graaaaa/mclog-companion/internal/store"
	"github.com/graaaaa/mclog-companion/internal/supervisor"
	"github.com/graaaaa/mclog-companion/internal/tail"
	"github.com/graaaaa/mclog-companion/internal/version"
)

func main() {
	configFile := flag.String("config", "", "config file (default: $"+appinfo.EnvConfigFile+" or config.yaml in the data directory)")
	writeConfig := flag.String("write-config", "", "write the default config to this path and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appinfo.AppName, version.String())
		return
	}
	if *writeConfig != "" {
		if err := config.WriteDefault(*writeConfig); err != nil {
			fmt.Fprintln(os.Stderr, "write config:", err)
			os.Exit(1)
		}
		fmt.Println("wrote", *writeConfig)
		return
	}

	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, usedFile, err := config.Load(config.LoadOptions{File: configFile})
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)
	log := logger.Logger

	log.Info("--- starting new session ---",
		"version", version.String(),
		"config", usedFile,
		"log_path", cfg.Ingest.LogPath,
		"driver", cfg.Storage.Driver,
	)

	lockPath, err := config.LockFilePath()
	if err != nil {
		return err
	}
	release, ok, err := singleinstance.AcquireLock(lockPath)
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return errors.New("another instance is already running")
	}
	defer release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancelOpen := context.WithTimeout(ctx, 30*time.Second)
	db, err := store.Open(openCtx, store.Config{
		Driver:   cfg.Storage.Driver,
		Path:     cfg.Storage.Path,
		Host:     cfg.Storage.Host,
		Port:     cfg.Storage.Port,
		User:     cfg.Storage.User,
		Password: cfg.Storage.Password.Value(),
		Database: cfg.Storage.Database,
		SSLMode:  cfg.Storage.SSLMode,
	})
	cancelOpen()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	m := metrics.New()

	// Start position
	policy, err := ingest.ParseStartPolicy(cfg.Ingest.StartFrom)
	if err != nil {
		return err
	}
	tailOpts, err := ingest.TailOptions(ctx, policy, cfg.Ingest.LogPath, db, log)
	if err != nil {
		return err
	}
	enc, err := tail.LookupEncoding(cfg.Ingest.Encoding)
	if err != nil {
		return err
	}
	tailOpts = append(tailOpts,
		tail.WithEncoding(enc),
		tail.WithPollInterval(cfg.Ingest.PollInterval),
		tail.WithLogger(log.With("component", "tail")),
	)
	tailer, err := tail.Open(cfg.Ingest.LogPath, tailOpts...)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer tailer.Close()

	// Fan-out targets
	hub := api.NewHub(
		api.WithHubLogger(log.With("component", "hub")),
		api.WithHubClientGauge(m.SSEClients),
	)

	var notifier *notify.Notifier
	if !cfg.Notify.DiscordWebhookURL.IsEmpty() {
		sender := notify.NewBreakerSender(
			notify.NewWebhook(cfg.Notify.DiscordWebhookURL, log.With("component", "discord")),
			log,
		)
		notifier = notify.NewNotifier(sender, cfg.Notify.BatchSec, notify.FilterConfig{
			OnBan:    cfg.Notify.OnBan,
			OnMute:   cfg.Notify.OnMute,
			OnReport: cfg.Notify.OnReport,
		},
			notify.WithNotifierLogger(log.With("component", "notify")),
			notify.WithNotifierRecorder(m.Notify()),
		)
		log.Info("Discord notifications enabled")
	} else {
		log.Info("Discord webhook not configured, notifications disabled")
	}

	var publisher *notify.Publisher
	if cfg.Redis.Addr != "" {
		publisher, err = notify.NewPublisher(ctx, notify.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password.Value(),
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		},
			notify.WithPublisherLogger(log.With("component", "redis")),
			notify.WithPublisherRecorder(m.Notify()),
		)
		if err != nil {
			return err
		}
		defer publisher.Close()
		log.Info("publishing records to redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	ingester := ingest.New(tailer, db,
		ingest.WithLogger(log.With("component", "ingest")),
		ingest.WithRecorder(m.Ingest()),
		ingest.WithOpTimeout(cfg.Storage.OpTimeout),
		ingest.WithRecordUnmatched(cfg.Ingest.RecordUnmatched),
		ingest.WithCursorEvery(cfg.Ingest.CursorSaveEvery),
		ingest.WithOnInsert(func(rec event.Record) {
			hub.Publish(rec)
			if notifier != nil {
				notifier.Enqueue(rec)
			}
			if publisher != nil {
				publisher.Enqueue(rec)
			}
		}),
	)

	sched, err := scheduler.New(db, scheduler.Specs{
		ExpirySweep: cfg.Maintenance.ExpirySweep,
		Vacuum:      cfg.Maintenance.Vacuum,
	},
		scheduler.WithLogger(log.With("component", "scheduler")),
		scheduler.WithRecorder(m),
	)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.API.Addr(),
		app.HealthService{Version: version.String(), DB: db},
		api.WithPlayerUsecase(app.NewPlayerService(db, app.SystemClock)),
		api.WithStatsUsecase(app.NewStatsService(db, app.SystemClock)),
		api.WithHub(hub),
		api.WithMetrics(m),
		api.WithLogger(log.With("component", "api")),
		api.WithCORSOrigins(cfg.API.CORSOrigins),
		api.WithRateLimit(cfg.API.RateLimitPerMin),
	)

	tree := supervisor.New(log, supervisor.DefaultTreeConfig())
	tree.AddPipeline(supervisor.Named{Name: "ingest", Run: ingester.Serve})
	tree.AddPipeline(supervisor.Named{Name: "scheduler", Run: sched.Serve})
	tree.AddDelivery(supervisor.Named{Name: "hub", Run: hub.Serve})
	tree.AddDelivery(supervisor.Named{Name: "api", Run: server.Serve})
	if notifier != nil {
		tree.AddDelivery(supervisor.Named{Name: "notify", Run: notifier.Serve})
	}
	if publisher != nil {
		tree.AddDelivery(supervisor.Named{Name: "redis", Run: publisher.Serve})
	}

	log.Info("API listening", "addr", cfg.API.Addr())
	err = tree.Serve(ctx)
	log.Info("shutting down")

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		log.Warn("services did not stop in time", "services", fmt.Sprint(report))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
