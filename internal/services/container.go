package services

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"snapcam/internal/config"
	"snapcam/internal/logging"
	"snapcam/internal/models"
	"snapcam/internal/services/camera"
	"snapcam/internal/services/capture"
	"snapcam/internal/services/health"
	"snapcam/internal/services/messaging"
	"snapcam/internal/services/publisher"
	"snapcam/internal/services/settings"
	"snapcam/internal/services/source"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config        *config.Config
	Discovery     *source.Discovery
	CameraManager *camera.Manager
	CaptureSvc    *capture.Service
	SettingsSvc   *settings.Service
	PublisherSvc  *publisher.Service
	MessagingSvc  *messaging.Service
	HealthSvc     *health.Service
	StartedAt     time.Time

	captureSub *nats.Subscription
}

// NewServiceContainer wires every service around the given device opener.
// NATS and the gRPC health server are optional and only created when
// enabled.
func NewServiceContainer(cfg *config.Config, opener source.Opener, discovery *source.Discovery) (*ServiceContainer, error) {
	mgr := camera.NewManager(opener, CameraOptions(cfg))

	def := cfg.SaveDirDefault
	if def == "" {
		def = capture.PlatformDefaultDir()
	}
	dirs := capture.NewDirResolver(def, cfg.SaveDirFallback, logging.NewServiceLogger(cfg, "savedir"))
	captureSvc := capture.NewService(mgr, dirs, cfg.FilenameWindows, logging.NewServiceLogger(cfg, "capture"))
	if cfg.SaveDir != "" {
		captureSvc.SetSaveDirOverride(cfg.SaveDir)
	}

	sc := &ServiceContainer{
		Config:        cfg,
		Discovery:     discovery,
		CameraManager: mgr,
		CaptureSvc:    captureSvc,
		SettingsSvc:   settings.NewService(mgr, captureSvc, discovery, logging.NewServiceLogger(cfg, "settings")),
		PublisherSvc:  publisher.NewService(mgr, logging.NewServiceLogger(cfg, "publisher")),
		StartedAt:     time.Now(),
	}

	if cfg.GRPCEnabled {
		sc.HealthSvc = health.NewService(logging.NewServiceLogger(cfg, "grpc-health"))
		mgr.OnEvent(sc.HealthSvc.OnCameraEvent)
	}

	if cfg.NatsEnabled {
		msg, err := messaging.NewService(cfg, logging.NewServiceLogger(cfg, "messaging"))
		if err != nil {
			// captures still work without the bus
			log.Warn().Err(err).Str("url", cfg.NatsURL).Msg("NATS unavailable, events disabled")
		} else {
			sc.MessagingSvc = msg
			captureSvc.SetEventPublisher(msg)
			mgr.OnEvent(func(evt models.CameraEvent) {
				if err := msg.PublishCameraEvent(evt); err != nil {
					log.Warn().Err(err).Msg("Failed to publish camera event")
				}
			})
		}
	}

	return sc, nil
}

// CameraOptions converts the configuration into acquisition loop options.
func CameraOptions(cfg *config.Config) camera.Options {
	return camera.Options{
		JPEGQuality:            cfg.JPEGQuality,
		MaxFPS:                 cfg.MaxFPS,
		MaxConsecutiveFailures: cfg.MaxConsecutiveErrors,
		ReadRetryDelay:         cfg.ReadRetryDelay,
		ReconnectBackoffMin:    cfg.ReconnectBackoffMin,
		ReconnectBackoffMax:    cfg.ReconnectBackoffMax,
		ReconnectJitterPct:     cfg.ReconnectJitterPct,
		ReopenAfter:            cfg.ReopenAfter,
		SnapshotTimeout:        cfg.SnapshotTimeout,
		StopTimeout:            cfg.StopTimeout,
		PanicRestartDelay:      cfg.PanicRestartDelay,
	}
}

// StartupTarget resolves the configured camera once. A configured name wins
// when discovery finds it; otherwise the index is used.
func (sc *ServiceContainer) StartupTarget(ctx context.Context) source.Target {
	target := source.Target{Index: sc.Config.CameraIndex, Name: sc.Config.CameraName}
	if target.Name == "" || sc.Discovery == nil {
		return target
	}

	idx, err := sc.Discovery.Resolve(ctx, target.Name)
	if err != nil {
		log.Warn().Err(err).Str("name", target.Name).Int("index", target.Index).Msg("Camera name not found, using index")
		return target
	}
	target.Index = idx
	return target
}

// Start opens the startup camera and the optional side services. A camera
// that cannot be opened is logged; the HTTP surface then reports no_camera.
func (sc *ServiceContainer) Start(ctx context.Context) error {
	if sc.HealthSvc != nil {
		if err := sc.HealthSvc.ListenAndServe(sc.Config.GRPCPort); err != nil {
			// the camera service runs without the health endpoint
			log.Warn().Err(err).Int("port", sc.Config.GRPCPort).Msg("gRPC health server unavailable")
		}
	}

	if sc.MessagingSvc != nil {
		sub, err := sc.MessagingSvc.ServeCaptureRequests(sc.Config.CaptureRequestSubject,
			sc.CaptureSvc.Capture, ErrorKind, sc.Config.SnapshotTimeout+5*time.Second)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to subscribe to capture requests")
		} else {
			sc.captureSub = sub
		}
	}

	target := sc.StartupTarget(ctx)
	if err := sc.CameraManager.Start(ctx, target); err != nil {
		log.Error().Err(err).Str("device", target.String()).Msg("Camera could not be opened at startup")
	}
	return nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.PublisherSvc != nil {
		errs = append(errs, sc.PublisherSvc.Shutdown(ctx))
	}

	if sc.captureSub != nil {
		errs = append(errs, sc.captureSub.Unsubscribe())
	}

	if sc.CameraManager != nil {
		errs = append(errs, sc.CameraManager.Stop(ctx))
	}

	if sc.MessagingSvc != nil {
		errs = append(errs, sc.MessagingSvc.Shutdown(ctx))
	}

	if sc.HealthSvc != nil {
		errs = append(errs, sc.HealthSvc.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
