package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"oiflow/cache"
	"oiflow/config"
	oichannel "oiflow/internal/channel/oi"
	"oiflow/logger"
	"oiflow/processor"
	"oiflow/reader/nse"
	"oiflow/server"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Oiflow.Name,
		"version":     cfg.Oiflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting oiflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, log)

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	logger.StartReport(ctx, log, 30*time.Second)

	channels := oichannel.NewChannels(cfg.Channels.RawBuffer)
	defer channels.Close()

	store := cache.NewSnapshotStore()

	oiReader, err := nse.Nse_OI_NewReader(cfg, channels)
	if err != nil {
		log.WithError(err).Error("failed to create nse reader")
		os.Exit(1)
	}

	extractor := processor.NewExtractor(cfg, channels.Raw, store)

	var wg sync.WaitGroup

	// The poll loop launches before the server accepts requests; the server
	// answers 503 until the first cycle lands.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := oiReader.Nse_OI_Start(ctx); err != nil {
			log.WithError(err).Warn("nse reader failed to start")
			return
		}
		<-ctx.Done()
		oiReader.Nse_OI_Stop()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := extractor.Start(ctx); err != nil {
			log.WithError(err).Warn("totals extractor failed to start")
			return
		}
		<-ctx.Done()
		extractor.Stop()
	}()

	srv := server.NewServer(cfg.Server, store, oiReader)
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("read endpoint failed")
		cancel()
	}

	wg.Wait()
	log.WithComponent("main").Info("oiflow stopped")
}

func handleShutdown(cancel context.CancelFunc, log *logger.Log) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	sig := <-ch
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("Shutdown requested.")
	cancel()
}
