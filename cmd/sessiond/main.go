package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sessiond/internal/capture"
	"sessiond/internal/config"
	"sessiond/internal/daemon"
	"sessiond/internal/instrument"
	"sessiond/internal/logging"
	"sessiond/internal/session"
)

func main() {
	configFlag := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, configPath, configExists, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewForDir(cfg.Daemon.LogDir, cfg.Daemon.LogLevel, cfg.Daemon.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if configExists {
		logger.Info("configuration loaded", logging.String("path", configPath))
	} else {
		logger.Warn("no configuration file found, using defaults", logging.String("path", configPath))
	}

	store, err := session.Open(cfg.Sessions.DataDir, cfg.Location(), cfg.Cameras, logger)
	if err != nil {
		logger.Error("open session store", logging.Error(err))
		os.Exit(1)
	}

	ctrl := capture.NewController(cfg, logger)

	exports := capture.NewExportClient(cfg.Recorder.URL, time.Duration(cfg.Recorder.RequestTimeout)*time.Second, logger)
	exports.SetExportWindow(
		time.Duration(cfg.Recorder.ExportPollInterval)*time.Second,
		time.Duration(cfg.Recorder.ExportTimeout)*time.Second,
	)

	source := instrument.NewClient(cfg.Instrument.URL, time.Duration(cfg.Instrument.RequestTimeout)*time.Second)

	d, err := daemon.New(cfg, store, ctrl, exports, source, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("sessiond shutting down")
	d.Stop()
}
