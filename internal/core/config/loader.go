package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultNodeURLs are the three local IBFT nodes of the reference network.
var DefaultNodeURLs = []string{
	"http://localhost:8545",
	"http://localhost:8555",
	"http://localhost:8565",
}

// Load reads configuration from a YAML file. An empty path yields the defaults.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyNodeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.CacheTTL == 0 {
		cfg.Server.CacheTTL = 2 * time.Second
	}

	if len(cfg.Nodes) == 0 {
		for i, url := range DefaultNodeURLs {
			cfg.Nodes = append(cfg.Nodes, NodeConfig{Name: fmt.Sprintf("node%d", i+1), URL: url})
		}
	}
	for i := range cfg.Nodes {
		if cfg.Nodes[i].Name == "" {
			cfg.Nodes[i].Name = fmt.Sprintf("node%d", i+1)
		}
	}

	m := &cfg.Monitor
	if m.CallTimeout == 0 {
		m.CallTimeout = 5 * time.Second
	}
	if m.PollInterval == 0 {
		m.PollInterval = 10 * time.Second
	}
	if m.RetryAttempts == 0 {
		m.RetryAttempts = 1
	}
	if m.RetryDelay == 0 {
		m.RetryDelay = 200 * time.Millisecond
	}
	if m.MaxLag == 0 {
		m.MaxLag = 5
	}
	if m.MinObservations == 0 {
		m.MinObservations = 2
	}
	if m.PrimaryNode == 0 {
		m.PrimaryNode = 1
	}
	if m.ValidatorMethod == "" {
		m.ValidatorMethod = "ibft_getValidatorsByBlockNumber"
	}
	if m.HistorySize == 0 {
		m.HistorySize = 1000
	}
}

// applyNodeEnv lets NODE<n>_RPC override the URL of node n.
func applyNodeEnv(cfg *AppConfig) {
	for i := range cfg.Nodes {
		if url := os.Getenv(fmt.Sprintf("NODE%d_RPC", i+1)); url != "" {
			cfg.Nodes[i].URL = url
		}
	}
}

// Validate checks the invariants the monitor relies on.
func (c *AppConfig) Validate() error {
	var errs []error
	for i, n := range c.Nodes {
		if n.URL == "" {
			errs = append(errs, fmt.Errorf("nodes[%d]: url is required", i))
		}
	}
	if c.Monitor.PrimaryNode < 1 || c.Monitor.PrimaryNode > len(c.Nodes) {
		errs = append(errs, fmt.Errorf("monitor.primary_node %d out of range 1..%d",
			c.Monitor.PrimaryNode, len(c.Nodes)))
	}
	if c.Monitor.MinObservations < 1 {
		errs = append(errs, fmt.Errorf("monitor.min_observations must be >= 1"))
	}
	if c.Monitor.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("monitor.retry_attempts must be >= 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
