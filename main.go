package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evalphobia/logrus_sentry"
	"github.com/pretix/minicron/config"
	"github.com/pretix/minicron/cron"
	"github.com/pretix/minicron/crontab"
	"github.com/pretix/minicron/log/formatter"
	"github.com/pretix/minicron/log/hook"
	"github.com/pretix/minicron/prometheus_metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		config.Usage(os.Stderr)
		return 2
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		config.Usage(os.Stderr)
		return 2
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer closeLog()

	mainLogger := logger.WithField(formatter.ComponentField, "main")

	if !cfg.NoReap && os.Getpid() == 1 {
		return forkExec(mainLogger)
	}

	mainLogger.Info("starting cron")

	ct, err := crontab.ParseFile(cfg.Crontab, logger.WithField(formatter.ComponentField, "parser"))
	if err != nil {
		mainLogger.Error(err)
		return 1
	}

	if cfg.Test {
		mainLogger.Infof("crontab %s is valid: %d jobs", cfg.Crontab, len(ct.Jobs))
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := prometheus_metrics.New()
	if cfg.Prometheus.ListenAddress != "" {
		if err := metrics.InitHTTPServer(cfg.Prometheus.ListenAddress, mainLogger); err != nil {
			mainLogger.Errorf("failed to start prometheus http server: %v", err)
			return 1
		}
		mainLogger.Infof("serving prometheus metrics on %s", metrics.Addr())

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metrics.ShutdownHTTPServer(shutdownCtx); err != nil {
				mainLogger.Errorf("failed to stop prometheus http server: %v", err)
			}
		}()
	}

	location, _ := cfg.Location()

	scheduler, err := cron.NewScheduler(
		ct,
		&cron.ShellExecutor{Shell: cfg.Shell},
		logrus.NewEntry(logger),
		cron.WithLocation(location),
		cron.WithMetrics(metrics),
	)
	if err != nil {
		mainLogger.Error(err)
		return 1
	}

	if cfg.Inotify {
		watchLogger := logger.WithField(formatter.ComponentField, "watch")
		go func() {
			if err := crontab.Watch(ctx, cfg.Crontab, watchLogger, scheduler.Replace); err != nil {
				watchLogger.Errorf("crontab watcher stopped: %v", err)
			}
		}()
	}

	if cfg.Once {
		err = scheduler.RunOnce(ctx)
	} else {
		err = scheduler.Run(ctx)
	}

	if err != nil {
		mainLogger.Error(err)
		return 1
	}

	return 0
}

func newLogger(cfg *config.Config) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	closeLog := func() {}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)

	if cfg.Log.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&formatter.ComponentFormatter{})
	}

	switch {
	case cfg.Log.File != "":
		file, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(file)
		closeLog = func() { file.Close() }
	case cfg.Log.Split:
		threshold, err := config.ParseLevel(cfg.Log.SplitLevel)
		if err != nil {
			return nil, nil, err
		}
		hook.RegisterSplitLogger(logger, os.Stdout, os.Stderr, threshold)
	default:
		logger.SetOutput(os.Stderr)
	}

	if cfg.Sentry.DSN != "" {
		sentryHook, err := logrus_sentry.NewAsyncSentryHook(cfg.Sentry.DSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}

		sentryHook.SetEnvironment(cfg.Sentry.Environment)
		sentryHook.SetRelease(cfg.Sentry.Release)
		logger.AddHook(sentryHook)

		previous := closeLog
		closeLog = func() {
			sentryHook.Flush()
			previous()
		}
	}

	return logger, closeLog, nil
}
