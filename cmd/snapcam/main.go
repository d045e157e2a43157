package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"snapcam/internal/api"
	"snapcam/internal/config"
	"snapcam/internal/logging"
	"snapcam/internal/services"
	"snapcam/internal/services/source"
	"snapcam/internal/services/source/opencv"
	"snapcam/internal/services/source/synthetic"
)

func main() {
	var (
		port     = flag.Int("port", 0, "HTTP port (overrides PORT)")
		logLevel = flag.String("log-level", "", "Log level (overrides LOG_LEVEL)")
	)
	flag.Parse()

	cfg := config.Load()
	if *port > 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logging.Setup(cfg)

	log.Info().
		Str("instance_id", cfg.InstanceID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Str("addr", cfg.Addr()).
		Int("camera_index", cfg.CameraIndex).
		Str("camera_name", cfg.CameraName).
		Str("camera_backend", cfg.CameraBackend).
		Msg("Starting snapcam")

	discovery := source.NewDiscovery()
	opener, err := newOpener(cfg, discovery)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid camera backend")
	}

	container, err := services.NewServiceContainer(cfg, opener, discovery)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create services")
	}

	server, err := api.NewServer(cfg, container)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := container.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("Server shutdown complete")
}

// newOpener picks the device backend. "synthetic" serves generated frames
// and needs no camera.
func newOpener(cfg *config.Config, discovery *source.Discovery) (source.Opener, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.CameraBackend), "synthetic") {
		delay := time.Second / time.Duration(max(cfg.MaxFPS, 1))
		return synthetic.NewOpener(cfg.CameraWidth, cfg.CameraHeight, delay), nil
	}

	backends, err := opencv.ParseBackends(cfg.CameraBackend)
	if err != nil {
		return nil, err
	}
	return opencv.NewOpener(opencv.Options{
		Backends:     backends,
		Width:        cfg.CameraWidth,
		Height:       cfg.CameraHeight,
		NameFallback: cfg.CameraNameFallback,
		Discovery:    discovery,
	}), nil
}
