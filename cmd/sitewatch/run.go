package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"

	"gitlab.com/henri.philipps/sitewatch/config"
	"gitlab.com/henri.philipps/sitewatch/fetch"
	"gitlab.com/henri.philipps/sitewatch/notify"
	"gitlab.com/henri.philipps/sitewatch/storage"
	storagefile "gitlab.com/henri.philipps/sitewatch/storage/file"
	"gitlab.com/henri.philipps/sitewatch/storage/postgres"
	"gitlab.com/henri.philipps/sitewatch/watcher"
)

var (
	runfs       = flag.NewFlagSet("run", flag.ExitOnError)
	configFlag  = runfs.String("config", "sites.yml", "path to the site list configuration")
	stateFlag   = runfs.String("state", "", "snapshot file path, overriding the configuration")
	backendFlag = runfs.String("backend", "", "snapshot backend (file|postgres), overriding the configuration")
	pgURIFlag   = runfs.String("pguri", "", "postgres connection uri, overriding the configuration")
	webhookFlag = runfs.String("webhook", "", "Slack incoming webhook URL; when empty, notifications go to the log")
	threadsFlag = runfs.Int("threads", 4, "how many pages per site are fetched in parallel")
	dryRunFlag  = runfs.Bool("dry-run", false, "log the notification instead of delivering it")
)

// newRunFunc creates the func which is executed by runcmd.
func newRunFunc() func(context.Context, []string) error {

	return func(runCtx context.Context, args []string) error {
		ctx, cancel := context.WithCancel(runCtx)
		defer cancel()

		logger, err := createLogger(*logLevelFlag)
		if err != nil {
			return err
		}

		cfg, err := config.Load(*configFlag)
		if err != nil {
			return err
		}
		if *stateFlag != "" {
			cfg.State.Path = *stateFlag
		}
		if *backendFlag != "" {
			cfg.State.Backend = *backendFlag
		}
		if *pgURIFlag != "" {
			cfg.State.PostgresURI = *pgURIFlag
		}

		var store storage.SnapshotStorage
		switch cfg.State.Backend {
		case config.BackendFile:
			store = storagefile.New(cfg.State.Path, logger)
		case config.BackendPostgres:
			store, err = postgres.New(cfg.State.PostgresURI, logger)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("snapshot backend %s not supported", cfg.State.Backend)
		}

		var notifier notify.Notifier
		if *webhookFlag == "" || *dryRunFlag {
			logger.Info("no webhook configured or dry run - notifications go to the log")
			notifier = notify.NewLog(logger)
		} else {
			notifier = notify.NewSlack(*webhookFlag)
		}

		fetcher := fetch.NewClient(
			fetch.WithTimeout(cfg.Limits.RequestTimeout),
			fetch.WithRetries(cfg.Limits.RequestRetries),
		)

		w := watcher.NewWatcher(cfg, store, fetcher, notifier,
			watcher.WithLogger(logger),
			watcher.WithThreads(*threadsFlag),
		)

		// the run group ties the monitoring pass to signal handling, so an
		// interrupted run exits cleanly and leaves the previous snapshot intact
		g := run.Group{}

		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("catched signal %v", sig)
			case <-ctx.Done():
				return ctx.Err()
			}
		}, func(error) {
			cancel()
		})

		g.Add(func() error { return w.Run(ctx) }, func(error) { cancel() })

		err = g.Run()
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("run failed", err)
			return err
		}

		logger.Info("run completed")
		return nil
	}
}
