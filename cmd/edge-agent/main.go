package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/application"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/config"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/infrastructure/badgerstore"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/infrastructure/dynamoregistry"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/infrastructure/mqtttelemetry"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/infrastructure/s3store"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/infrastructure/sqlite"
)

func main() {
	logger := log.New(os.Stdout, "edge-agent ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	deviceID := domain.DeviceID(cfg.DeviceID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel, logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatalf("load aws config: %v", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	devices := &dynamoregistry.DeviceRegistry{Client: dynamoClient, Table: cfg.DeviceTable}
	rollouts := &dynamoregistry.RolloutRegistry{Client: dynamoClient, Table: cfg.RolloutTable}
	objects := &s3store.Store{Client: s3.NewFromConfig(awsCfg), Bucket: cfg.SyncBucket}

	store, err := badgerstore.Open(cfg.DataDir + "/store")
	if err != nil {
		logger.Fatalf("open local store: %v", err)
	}
	defer store.Close()

	journalDB, err := sqlite.Open(cfg.JournalDB)
	if err != nil {
		logger.Fatalf("open update journal: %v", err)
	}
	defer journalDB.Close()

	syncManager, err := application.NewSyncManager(store, objects, devices, application.SyncManagerConfig{
		DeviceID:       deviceID,
		LocalCacheDir:  cfg.CacheDir,
		SyncInterval:   cfg.SyncInterval,
		NetworkTimeout: cfg.NetworkTimeout,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatalf("create sync manager: %v", err)
	}

	rolloutManager, err := application.NewRolloutManager(devices, rollouts, objects, &sqlite.JournalRepo{DB: journalDB}, application.RolloutManagerConfig{
		DeviceID:       deviceID,
		DeviceGroup:    cfg.DeviceGroup,
		UpdateDir:      cfg.UpdateDir,
		CheckInterval:  cfg.UpdateCheckInterval,
		NetworkTimeout: cfg.NetworkTimeout,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatalf("create rollout manager: %v", err)
	}

	if cfg.MQTTBrokerURL != "" {
		reporter, err := mqtttelemetry.New(deviceID, mqtttelemetry.Config{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
		})
		if err != nil {
			// Telemetry is best-effort; the agent runs without it.
			logger.Printf("mqtt telemetry disabled: %v", err)
		} else {
			defer reporter.Close()
			rolloutManager.RegisterTelemetryReporter(reporter)
		}
	}

	if err := syncManager.Start(); err != nil {
		logger.Fatalf("start sync manager: %v", err)
	}
	defer syncManager.Close()

	if err := rolloutManager.Start(); err != nil {
		logger.Fatalf("start rollout manager: %v", err)
	}
	defer rolloutManager.Close()

	// Connectivity probing is deployment-specific; assume online and let
	// sync passes fail harmlessly while the network is down.
	syncManager.SetOnlineStatus(true)

	logger.Printf("device %s (group %s) running", cfg.DeviceID, cfg.DeviceGroup)
	<-ctx.Done()
	logger.Println("edge-agent stopped")
}

func setupGracefulShutdown(cancel context.CancelFunc, logger *log.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Printf("received signal: %v — shutting down...", s)
		cancel()
	}()
}
