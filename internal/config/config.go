package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Application
	Version     string
	Environment string
	InstanceID  string
	Host        string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// gRPC health endpoint
	GRPCEnabled bool
	GRPCPort    int

	// NATS (capture and camera events)
	NatsEnabled           bool
	NatsURL               string
	NatsConnectTimeout    time.Duration
	NatsReconnectWait     time.Duration
	NatsMaxReconnects     int
	NatsDrainTimeout      time.Duration
	CaptureSubject        string
	CaptureRequestSubject string
	CameraEventsSubject   string

	// Camera selection, resolved once at startup
	CameraIndex        int
	CameraName         string
	CameraBackend      string
	CameraNameFallback bool
	CameraWidth        int
	CameraHeight       int

	// Acquisition loop
	MaxFPS               int
	JPEGQuality          int
	MaxConsecutiveErrors int
	ReadRetryDelay       time.Duration
	ReopenAfter          int
	SnapshotTimeout      time.Duration
	StopTimeout          time.Duration

	// Backoff/Jitter config for reconnections
	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration
	ReconnectJitterPct  int

	// Captures
	SaveDir         string
	SaveDirDefault  string
	SaveDirFallback string
	FilenameWindows bool

	// Swagger Configuration
	SwaggerHost string

	// Treat camera as unhealthy if no frames for this duration
	FrameStaleThreshold time.Duration

	// Graceful Shutdown
	ShutdownTimeout time.Duration

	// Delay before restarting a crashed acquisition loop
	PanicRestartDelay time.Duration
}

// fileConfig is the optional YAML file named by CONFIG_FILE. Environment
// variables take precedence over it.
type fileConfig struct {
	Server struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		GRPCPort int    `yaml:"grpc_port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`
	Camera struct {
		Index        *int   `yaml:"index"`
		Name         string `yaml:"name"`
		Backend      string `yaml:"backend"`
		NameFallback *bool  `yaml:"name_fallback"`
		Width        int    `yaml:"width"`
		Height       int    `yaml:"height"`
		MaxFPS       int    `yaml:"max_fps"`
		JPEGQuality  int    `yaml:"jpeg_quality"`
	} `yaml:"camera"`
	Capture struct {
		SaveDir          string `yaml:"save_dir"`
		SaveDirDefault   string `yaml:"save_dir_default"`
		SaveDirFallback  string `yaml:"save_dir_fallback"`
		WindowsFilenames *bool  `yaml:"windows_filenames"`
	} `yaml:"capture"`
	NATS struct {
		Enabled *bool  `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := readFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring config file")
		} else {
			fc = loaded
			log.Info().Str("path", path).Msg("Loaded configuration file")
		}
	}

	cameraIndex := 0
	if fc.Camera.Index != nil {
		cameraIndex = *fc.Camera.Index
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		InstanceID:  getEnv("INSTANCE_ID", defaultInstanceID()),
		Host:        getEnv("HOST", or(fc.Server.Host, "127.0.0.1")),
		Port:        getEnvInt("PORT", orInt(fc.Server.Port, 5000)),
		LogLevel:    getEnv("LOG_LEVEL", or(fc.Server.LogLevel, "info")),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// gRPC health
		GRPCEnabled: getEnvBool("GRPC_ENABLED", true),
		GRPCPort:    getEnvInt("GRPC_PORT", orInt(fc.Server.GRPCPort, 5001)),

		// NATS
		NatsEnabled:           getEnvBool("NATS_ENABLED", orBool(fc.NATS.Enabled, false)),
		NatsURL:               getEnv("NATS_URL", or(fc.NATS.URL, "nats://localhost:4222")),
		NatsConnectTimeout:    getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:     getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:     getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:      getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),
		CaptureSubject:        getEnv("CAPTURE_SUBJECT", "snapcam.captures"),
		CaptureRequestSubject: getEnv("CAPTURE_REQUEST_SUBJECT", "snapcam.capture.request"),
		CameraEventsSubject:   getEnv("CAMERA_EVENTS_SUBJECT", "snapcam.camera"),

		// Camera
		CameraIndex:        getEnvInt("CAMERA_INDEX", cameraIndex),
		CameraName:         getEnv("CAMERA_NAME", fc.Camera.Name),
		CameraBackend:      getEnv("CAMERA_BACKEND", or(fc.Camera.Backend, "auto")),
		CameraNameFallback: getEnvBool("CAMERA_NAME_FALLBACK", orBool(fc.Camera.NameFallback, true)),
		CameraWidth:        getEnvInt("CAMERA_WIDTH", orInt(fc.Camera.Width, 1920)),
		CameraHeight:       getEnvInt("CAMERA_HEIGHT", orInt(fc.Camera.Height, 1080)),

		// Acquisition loop
		MaxFPS:               getEnvInt("MAX_FPS", orInt(fc.Camera.MaxFPS, 30)),
		JPEGQuality:          getEnvInt("JPEG_QUALITY", orInt(fc.Camera.JPEGQuality, 90)),
		MaxConsecutiveErrors: getEnvInt("MAX_CONSECUTIVE_ERRORS", 10),
		ReadRetryDelay:       getEnvDuration("READ_RETRY_DELAY", 100*time.Millisecond),
		ReopenAfter:          getEnvInt("REOPEN_AFTER", 3),
		SnapshotTimeout:      getEnvDuration("SNAPSHOT_TIMEOUT", 2*time.Second),
		StopTimeout:          getEnvDuration("STOP_TIMEOUT", 5*time.Second),

		// Backoff/Jitter
		ReconnectBackoffMin: getEnvDuration("RECONNECT_BACKOFF_MIN", 1*time.Second),
		ReconnectBackoffMax: getEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second),
		ReconnectJitterPct:  getEnvInt("RECONNECT_JITTER_PCT", 20),

		// Captures
		SaveDir:         getEnv("SAVE_DIR", fc.Capture.SaveDir),
		SaveDirDefault:  getEnv("SAVE_DIR_DEFAULT", fc.Capture.SaveDirDefault),
		SaveDirFallback: getEnv("SAVE_DIR_FALLBACK", or(fc.Capture.SaveDirFallback, defaultFallbackDir())),
		FilenameWindows: getEnvBool("FILENAME_WINDOWS", orBool(fc.Capture.WindowsFilenames, runtime.GOOS == "windows")),

		// Swagger Configuration
		SwaggerHost: getEnv("SWAGGER_HOST", ""),

		// Health Check
		FrameStaleThreshold: getEnvDuration("FRAME_STALE_THRESHOLD", 10*time.Second),

		// Graceful Shutdown
		ShutdownTimeout:   getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		PanicRestartDelay: getEnvDuration("PANIC_RESTART_DELAY", 2*time.Second),
	}
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func orInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func orBool(value *bool, fallback bool) bool {
	if value != nil {
		return *value
	}
	return fallback
}

func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "snapcam"
}

// defaultFallbackDir is captured_images next to the executable's working
// directory.
func defaultFallbackDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "captured_images"
	}
	return filepath.Join(wd, "captured_images")
}
