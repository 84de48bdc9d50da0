package config

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Controller ControllerConfig `yaml:"controller"`
	Local      LocalConfig      `yaml:"local"`
	Cloud      CloudConfig      `yaml:"cloud"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the UI boundary HTTP server configuration.
type ServerConfig struct {
	Port                 int           `yaml:"port"`
	RateLimitPerSec      float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst       int           `yaml:"rate_limit_burst"`
	EventCacheTTLSeconds int           `yaml:"event_cache_ttl_seconds"`
	EventCacheTTL        time.Duration `yaml:"-"`
	AllowedOrigins       []string      `yaml:"allowed_origins"`
}

// ControllerConfig holds the controller loop cadence.
type ControllerConfig struct {
	PollIntervalMs         int `yaml:"poll_interval_ms"`
	QuickRefreshDelayMs    int `yaml:"quick_refresh_delay_ms"`
	LocalRefreshIntervalMs int `yaml:"local_refresh_interval_ms"`
	CloudRefreshIntervalMs int `yaml:"cloud_refresh_interval_ms"`
	CommandBuffer          int `yaml:"command_buffer"`

	PollInterval         time.Duration `yaml:"-"`
	QuickRefreshDelay    time.Duration `yaml:"-"`
	LocalRefreshInterval time.Duration `yaml:"-"`
	CloudRefreshInterval time.Duration `yaml:"-"`
}

// LocalConfig holds the on-device HTTP API settings.
type LocalConfig struct {
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// CloudConfig holds the device-management cloud settings.
type CloudConfig struct {
	AuthURL                string        `yaml:"auth_url"`
	APIURL                 string        `yaml:"api_url"`
	TimeoutSeconds         int           `yaml:"timeout_seconds"`
	AuthTimeoutSeconds     int           `yaml:"auth_timeout_seconds"`
	IngestionWindowSeconds int           `yaml:"ingestion_window_seconds"`
	Timeout                time.Duration `yaml:"-"`
	AuthTimeout            time.Duration `yaml:"-"`
	IngestionWindow        time.Duration `yaml:"-"`
}

// DiscoveryConfig holds the UDP broadcast discovery settings.
type DiscoveryConfig struct {
	BroadcastAddr string        `yaml:"broadcast_addr"`
	Probe         string        `yaml:"probe"`
	Magic         string        `yaml:"magic"`
	WindowMs      int           `yaml:"window_ms"`
	BufferSize    int           `yaml:"buffer_size"`
	Window        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the preference database configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a YAML configuration and fills in defaults. An empty document
// yields the default configuration.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 20
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 40
	}
	if cfg.Server.EventCacheTTLSeconds <= 0 {
		cfg.Server.EventCacheTTLSeconds = 600
	}
	cfg.Server.EventCacheTTL = time.Duration(cfg.Server.EventCacheTTLSeconds) * time.Second

	c := &cfg.Controller
	c.PollInterval = millis(&c.PollIntervalMs, 100)
	c.QuickRefreshDelay = millis(&c.QuickRefreshDelayMs, 300)
	c.LocalRefreshInterval = millis(&c.LocalRefreshIntervalMs, 1000)
	c.CloudRefreshInterval = millis(&c.CloudRefreshIntervalMs, 5000)
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = 32
	}

	cfg.Local.Timeout = seconds(&cfg.Local.TimeoutSeconds, 4)

	cfg.Cloud.Timeout = seconds(&cfg.Cloud.TimeoutSeconds, 4)
	cfg.Cloud.AuthTimeout = seconds(&cfg.Cloud.AuthTimeoutSeconds, 8)
	cfg.Cloud.IngestionWindow = seconds(&cfg.Cloud.IngestionWindowSeconds, 120)

	d := &cfg.Discovery
	if d.BroadcastAddr == "" {
		d.BroadcastAddr = "255.255.255.255:4040"
	}
	if d.Probe == "" {
		d.Probe = "WS2020_ROTONDI_DISCOVERY"
	}
	if d.Magic == "" {
		d.Magic = "WS2020"
	}
	if d.BufferSize <= 0 {
		d.BufferSize = 32
	}
	d.Window = millis(&d.WindowMs, 2000)

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:laundry-control.db"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 1
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Debug().Msg("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func millis(v *int, def int) time.Duration {
	if *v <= 0 {
		*v = def
	}
	return time.Duration(*v) * time.Millisecond
}

func seconds(v *int, def int) time.Duration {
	if *v <= 0 {
		*v = def
	}
	return time.Duration(*v) * time.Second
}
