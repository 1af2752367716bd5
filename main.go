package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"docrelay/config"
	"docrelay/logger"
	"docrelay/routes"
	"docrelay/server"
	"docrelay/storage"
)

func main() {
	cfg, err := config.LoadSidecar()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(cfg.LogFile, true); err != nil {
		logger.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)

	logger.Infof("Starting %s %s", routes.ServiceName, routes.Version())

	logger.Debugf("Opening storage root %s", cfg.StoragePath)
	store, err := storage.NewStore(cfg.StoragePath)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	logger.Infof("Storage root: %s", store.Root())

	if cfg.UploadSecret == "" {
		logger.Warn("DOCRELAY_UPLOAD_SECRET is not set, uploads are not authenticated")
	}
	if cfg.PublicURL == "" {
		logger.Info("DOCRELAY_PUBLIC_URL is not set, file URLs use the request Host")
	}

	handler := routes.NewHandler(store, routes.Options{
		PublicURL:      cfg.PublicURL,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		UploadSecret:   []byte(cfg.UploadSecret),
	})

	srv := server.New(cfg.ListenAddr(), handler, cfg.DrainTimeout)
	if err := srv.Start(); err != nil {
		logger.Fatalf("Server failed to start: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Wait() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, draining connections")
	case err := <-serveErr:
		if err != nil {
			logger.Errorf("Server stopped unexpectedly: %v", err)
			os.Exit(1)
		}
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.Errorf("Shutdown error: %v", err)
	}
	logger.Info("Server stopped")
}
