package config

import (
	"time"

	redisclient "github.com/vietddude/chainwatch/internal/infra/redis"
	"github.com/vietddude/chainwatch/internal/infra/storage/postgres"
	"github.com/vietddude/chainwatch/internal/telemetry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Nodes     []NodeConfig       `yaml:"nodes"`
	Monitor   MonitorConfig      `yaml:"monitor"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Telemetry telemetry.Config   `yaml:"telemetry"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int             `yaml:"port"`
	GRPCPort int             `yaml:"grpc_port"` // 0 = disabled
	CacheTTL time.Duration   `yaml:"cache_ttl"`
	CORS     []string        `yaml:"cors_origins"`
	Rate     RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds per-client API request rates. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NodeConfig describes one JSON-RPC endpoint. Order defines the node index.
type NodeConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// MonitorConfig tunes probing, reconciliation and validator resolution.
type MonitorConfig struct {
	CallTimeout      time.Duration `yaml:"call_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	RetryAttempts    int           `yaml:"retry_attempts"` // 1 = no retry
	RetryDelay       time.Duration `yaml:"retry_delay"`
	MaxLag           uint64        `yaml:"max_lag"`
	MinObservations  int           `yaml:"min_observations"`
	PrimaryNode      int           `yaml:"primary_node"` // 1-based
	ValidatorMethod  string        `yaml:"validator_method"`
	HistoryRetention time.Duration `yaml:"history_retention"` // 0 = keep forever
	HistorySize      int           `yaml:"history_size"`      // in-memory history cap
}
