package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"snapcam/internal/config"
)

// NewServiceLogger returns a child of the global logger tagged with the
// instance and service name.
func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("instance_id", cfg.InstanceID).Str("service", service).Logger()
}
