package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Booking  BookingConfig  `yaml:"booking"`
	Sync     SyncConfig     `yaml:"sync"`
	Redis    RedisConfig    `yaml:"redis"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres | sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"` // silent | error | warn | info
}

// BookingConfig holds the reservation admission policy.
type BookingConfig struct {
	MinHours           int `yaml:"min_hours"`
	MaxHours           int `yaml:"max_hours"`
	MaxPlayers         int `yaml:"max_players"`
	MaxActivePerUser   int `yaml:"max_active_per_user"`
	MaxAdvanceDays     int `yaml:"max_advance_days"`
	MinLeadTimeMinutes int `yaml:"min_lead_time_minutes"`
	NumberRetries      int `yaml:"number_retries"`
}

// SyncConfig controls the reservation status synchronizer.
type SyncConfig struct {
	Gate                  string        `yaml:"gate"` // memory | redis | db
	GateIntervalSeconds   int           `yaml:"gate_interval_seconds"`
	GateInterval          time.Duration `yaml:"-"`
	InlineTimeoutMillis   int           `yaml:"inline_timeout_ms"`
	InlineTimeout         time.Duration `yaml:"-"`
	NoShowGraceMinutes    int           `yaml:"no_show_grace_minutes"`
	NoShowGrace           time.Duration `yaml:"-"`
	RunnerEnabled         bool          `yaml:"runner_enabled"`
	RunnerIntervalSeconds int           `yaml:"runner_interval_seconds"`
	RunnerInterval        time.Duration `yaml:"-"`
}

// RedisConfig holds the connection for the shared sync gate.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig holds the lifecycle event publisher configuration.
type EventsConfig struct {
	AMQPURL    string `yaml:"amqp_url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	WorkerSize int    `yaml:"worker_size"`
	QueueSize  int    `yaml:"queue_size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv lets deployment secrets override the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Events.AMQPURL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}

	b := &cfg.Booking
	if b.MinHours <= 0 {
		b.MinHours = 1
	}
	if b.MaxHours <= 0 {
		b.MaxHours = 4
	}
	if b.MaxPlayers <= 0 {
		b.MaxPlayers = 2
	}
	if b.MaxActivePerUser <= 0 {
		b.MaxActivePerUser = 3
	}
	if b.MaxAdvanceDays <= 0 {
		b.MaxAdvanceDays = 21
	}
	if b.MinLeadTimeMinutes <= 0 {
		b.MinLeadTimeMinutes = 24 * 60
	}
	if b.NumberRetries <= 0 {
		b.NumberRetries = 3
	}

	s := &cfg.Sync
	if s.Gate == "" {
		s.Gate = "memory"
	}
	if s.GateIntervalSeconds <= 0 {
		s.GateIntervalSeconds = 60
	}
	s.GateInterval = time.Duration(s.GateIntervalSeconds) * time.Second
	if s.InlineTimeoutMillis <= 0 {
		s.InlineTimeoutMillis = 2000
	}
	s.InlineTimeout = time.Duration(s.InlineTimeoutMillis) * time.Millisecond
	if s.NoShowGraceMinutes <= 0 {
		s.NoShowGraceMinutes = 30
	}
	s.NoShowGrace = time.Duration(s.NoShowGraceMinutes) * time.Minute
	if s.RunnerIntervalSeconds <= 0 {
		s.RunnerIntervalSeconds = 60
	}
	s.RunnerInterval = time.Duration(s.RunnerIntervalSeconds) * time.Second

	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "arcade.reservations"
	}
	if cfg.Events.RoutingKey == "" {
		cfg.Events.RoutingKey = "reservation.lifecycle"
	}
	if cfg.Events.WorkerSize <= 0 {
		log.Printf("events.worker_size is not set or invalid; defaulting to 1")
		cfg.Events.WorkerSize = 1
	}
	if cfg.Events.QueueSize <= 0 {
		cfg.Events.QueueSize = 256
	}
}
