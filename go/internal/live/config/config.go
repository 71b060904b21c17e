package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/setlist/go/internal/dbconfig"
	"github.com/mcdev12/setlist/go/internal/live/session"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportLocal = "local"
	TransportNATS  = "nats"
	TransportRedis = "redis"
	TransportWS    = "ws"
)

// Config is the configuration shared by the live binaries. YAML values are the base;
// environment variables win.
type Config struct {
	SessionID   string `yaml:"session_id"`
	ClientID    string `yaml:"client_id"`
	Transport   string `yaml:"transport"`
	NATSURL     string `yaml:"nats_url"`
	RedisAddr   string `yaml:"redis_addr"`
	RelayURL    string `yaml:"relay_url"`
	RelayPort   string `yaml:"relay_port"`
	SetlistFile string `yaml:"setlist_file"`
	LogLevel    string `yaml:"log_level"`

	Sync SyncConfig `yaml:"sync"`

	Database dbconfig.Config `yaml:"-"`
}

// SyncConfig holds the synchronization tunables.
type SyncConfig struct {
	Alpha              float64       `yaml:"alpha"`
	LeadBeats          float64       `yaml:"lead_beats"`
	ProbeInterval      time.Duration `yaml:"probe_interval"`
	FrameInterval      time.Duration `yaml:"frame_interval"`
	ImmediateThreshold time.Duration `yaml:"immediate_threshold"`
	MaxCountdownBeats  int           `yaml:"max_countdown_beats"`
	AutoFullscreen     bool          `yaml:"auto_fullscreen"`
	ReconnectMin       time.Duration `yaml:"reconnect_min"`
	ReconnectMax       time.Duration `yaml:"reconnect_max"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	d := session.DefaultConfig("")
	return Config{
		Transport: TransportLocal,
		NATSURL:   "nats://localhost:4222",
		RedisAddr: "localhost:6379",
		RelayURL:  "ws://localhost:8090/ws/live",
		RelayPort: "8090",
		LogLevel:  "info",
		Sync: SyncConfig{
			Alpha:              d.Alpha,
			LeadBeats:          d.LeadBeats,
			ProbeInterval:      d.ProbeInterval,
			FrameInterval:      d.FrameInterval,
			ImmediateThreshold: d.ImmediateThreshold,
			MaxCountdownBeats:  d.MaxCountdownBeats,
			AutoFullscreen:     d.AutoFullscreen,
			ReconnectMin:       d.ReconnectMin,
			ReconnectMax:       d.ReconnectMax,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path and the
// environment, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.Database = dbconfig.NewConfigFromEnv()
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.New().String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.SessionID = getEnv("SESSION_ID", c.SessionID)
	c.ClientID = getEnv("CLIENT_ID", c.ClientID)
	c.Transport = strings.ToLower(getEnv("SYNC_TRANSPORT", c.Transport))
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RelayURL = getEnv("RELAY_URL", c.RelayURL)
	c.RelayPort = getEnv("RELAY_PORT", c.RelayPort)
	c.SetlistFile = getEnv("SETLIST_FILE", c.SetlistFile)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Sync.Alpha = getEnvAsFloat("SYNC_ALPHA", c.Sync.Alpha)
	c.Sync.LeadBeats = getEnvAsFloat("SYNC_LEAD_BEATS", c.Sync.LeadBeats)
	c.Sync.ProbeInterval = getEnvAsDuration("SYNC_PROBE_INTERVAL", c.Sync.ProbeInterval)
	c.Sync.FrameInterval = getEnvAsDuration("SYNC_FRAME_INTERVAL", c.Sync.FrameInterval)
	c.Sync.ImmediateThreshold = getEnvAsDuration("SYNC_IMMEDIATE_THRESHOLD", c.Sync.ImmediateThreshold)
	c.Sync.MaxCountdownBeats = getEnvAsInt("SYNC_MAX_COUNTDOWN_BEATS", c.Sync.MaxCountdownBeats)
	c.Sync.AutoFullscreen = getEnvAsBool("SYNC_AUTO_FULLSCREEN", c.Sync.AutoFullscreen)
	c.Sync.ReconnectMin = getEnvAsDuration("SYNC_RECONNECT_MIN", c.Sync.ReconnectMin)
	c.Sync.ReconnectMax = getEnvAsDuration("SYNC_RECONNECT_MAX", c.Sync.ReconnectMax)
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportLocal, TransportNATS, TransportRedis, TransportWS:
	default:
		return fmt.Errorf("unknown transport %q (want local, nats, redis or ws)", c.Transport)
	}
	if c.Sync.Alpha <= 0 || c.Sync.Alpha > 1 {
		return fmt.Errorf("sync alpha must be in (0, 1], got %v", c.Sync.Alpha)
	}
	if c.Sync.LeadBeats <= 0 {
		return errors.New("sync lead beats must be positive")
	}
	if c.Sync.ProbeInterval <= 0 || c.Sync.FrameInterval <= 0 {
		return errors.New("sync intervals must be positive")
	}
	if c.Sync.ReconnectMin <= 0 || c.Sync.ReconnectMax < c.Sync.ReconnectMin {
		return errors.New("sync reconnect delays must be positive with min <= max")
	}
	return nil
}

// SessionConfig converts the tunables into a session configuration.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		SessionID:          c.SessionID,
		ClientID:           c.ClientID,
		Alpha:              c.Sync.Alpha,
		LeadBeats:          c.Sync.LeadBeats,
		ProbeInterval:      c.Sync.ProbeInterval,
		FrameInterval:      c.Sync.FrameInterval,
		ImmediateThreshold: c.Sync.ImmediateThreshold,
		MaxCountdownBeats:  c.Sync.MaxCountdownBeats,
		AutoFullscreen:     c.Sync.AutoFullscreen,
		ReconnectMin:       c.Sync.ReconnectMin,
		ReconnectMax:       c.Sync.ReconnectMax,
	}
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
