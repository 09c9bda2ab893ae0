package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"beamline/internal/config"
	"beamline/internal/daemon"
	"beamline/internal/ipc"
	"beamline/internal/logging"
	"beamline/internal/scripts"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/beamline/config.toml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := scripts.Open(cfg)
	if err != nil {
		logger.Error("open script store", logging.Error(err))
		return
	}

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		return
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	select {
	case <-ctx.Done():
	case <-d.ShutdownRequested():
	}
	logger.Info("beamlined shutting down")
}
