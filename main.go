package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ethernal-Tech/starkex-infrastructure/common"
	"github.com/Ethernal-Tech/starkex-infrastructure/config"
	"github.com/Ethernal-Tech/starkex-infrastructure/ethereum"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer/db"
	"github.com/Ethernal-Tech/starkex-infrastructure/logger"
	"github.com/Ethernal-Tech/starkex-infrastructure/statesync"
)

const dataDirPerms = 0770

func run(ctx context.Context, appConfig *config.AppConfig) (err error) {
	if err := common.SetupDataDir(appConfig.DataDir, nil, dataDirPerms); err != nil {
		return err
	}

	loggerConfig, err := appConfig.LoggerConfig()
	if err != nil {
		return err
	}

	loggers := logger.NewLoggerContainer(loggerConfig)

	mainLogger, err := loggers.GetLogger("main")
	if err != nil {
		return err
	}

	database, err := db.NewDatabaseInit(appConfig.Database, appConfig.DatabaseFilePath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	defer func() {
		err = errors.Join(err, database.Close())
	}()

	ethLogger, err := loggers.GetLogger("ethereum")
	if err != nil {
		return err
	}

	client, err := ethereum.NewClient(ctx, appConfig.ClientConfig(), ethLogger)
	if err != nil {
		return err
	}

	defer client.Close()

	if err := client.AssertChainID(ctx); err != nil {
		return err
	}

	downloaderLogger, err := loggers.GetLogger("downloader")
	if err != nil {
		return err
	}

	stateSyncLogger, err := loggers.GetLogger("statesync")
	if err != nil {
		return err
	}

	schedulerLogger, err := loggers.GetLogger("scheduler")
	if err != nil {
		return err
	}

	downloader := indexer.NewBlockDownloader(client, database, appConfig.BlockDownloaderConfig(), downloaderLogger)

	stateSync, err := statesync.NewService(client, database, appConfig.StateSyncConfig(), stateSyncLogger)
	if err != nil {
		return err
	}

	scheduler := indexer.NewSyncScheduler(
		database, downloader, stateSync, appConfig.SyncSchedulerConfig(), schedulerLogger)

	// the scheduler reads the stored blocks and subscribes before the downloader emits new ones
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync scheduler: %w", err)
	}

	defer scheduler.Close()

	if err := downloader.Start(ctx); err != nil {
		return fmt.Errorf("failed to start block downloader: %w", err)
	}

	defer downloader.Close()

	mainLogger.Info("Sync has been started", "dataDir", appConfig.DataDir, "database", appConfig.Database)

	<-ctx.Done()

	mainLogger.Info("Stopping sync")

	return nil
}

func main() {
	configPath := flag.String("config", "config.json", "path to the json or yaml config file")

	flag.Parse()

	appConfig, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, appConfig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1) //nolint:gocritic
	}
}
