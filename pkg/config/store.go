package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xlttj/chreport/pkg/logging"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "config.yaml"

var (
	// ErrConfigCreated is returned when the config file was missing and a
	// sample was written in its place. The operator has to edit it first.
	ErrConfigCreated = errors.New("config file created from template, edit it and run again")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// expandHomeDir replaces the leading ~ with the user's home directory
func expandHomeDir(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	path = filepath.Join(home, path[1:])
	return path, nil
}

// ensureConfigDir ensures the directory holding configPath exists
func ensureConfigDir(configPath string) error {
	dirPath := filepath.Dir(configPath)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// Load reads, defaults, overlays env and validates the config at path.
// A missing file is replaced by the sample template and ErrConfigCreated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	expandedPath, err := expandHomeDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	_, err = os.Stat(expandedPath)
	if os.IsNotExist(err) {
		logging.LogDebug("Config file %s does not exist, writing sample", expandedPath)
		if err := WriteSample(expandedPath); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrConfigCreated, expandedPath)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", expandedPath, err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", expandedPath, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", expandedPath, err)
	}
	logging.LogDebug("Loaded %d queries from %s", len(cfg.Queries), expandedPath)
	return cfg, nil
}

// Parse decodes YAML bytes, then applies defaults, env overrides and
// validation in that order.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteSample writes the documented template to path, creating its directory.
func WriteSample(path string) error {
	path, err := expandHomeDir(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := ensureConfigDir(path); err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString(sampleHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Sample()); err != nil {
		return fmt.Errorf("failed to encode sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode sample config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write sample config %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	c := &cfg.ClickHouse
	switch strings.ToLower(strings.TrimSpace(string(c.Mode))) {
	case "", string(ModeDirect):
		c.Mode = ModeDirect
	case string(ModeTunneled), "tunneled", "tunnel":
		c.Mode = ModeTunneled
	}
	if c.Driver == "" {
		c.Driver = "clickhouse"
	}
	if c.Driver == "clickhouse" && c.Protocol == "" {
		c.Protocol = "http"
	}
	if t := c.Tunnel; t != nil {
		if t.InternalPort == 0 {
			t.InternalPort = 8123
		}
		if t.LocalPort == 0 {
			t.LocalPort = t.InternalPort
		}
	}
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "./output"
	}
	if cfg.Output.FilenamePrefix == "" {
		cfg.Output.FilenamePrefix = "daily_report"
	}
	if cfg.Logging.Directory == "" {
		cfg.Logging.Directory = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks the invariants the run depends on.
func (cfg *Config) Validate() error {
	c := cfg.ClickHouse
	switch c.Mode {
	case ModeDirect, ModeTunneled:
	default:
		return fmt.Errorf("%w: connection_type %q must be direct or kubectl", ErrInvalidConfig, c.Mode)
	}
	switch c.Driver {
	case "clickhouse":
		if c.Protocol != "http" && c.Protocol != "native" {
			return fmt.Errorf("%w: protocol %q must be http or native", ErrInvalidConfig, c.Protocol)
		}
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: driver %q must be clickhouse, postgres or sqlite", ErrInvalidConfig, c.Driver)
	}

	if c.Mode == ModeTunneled && c.Tunnel == nil {
		return fmt.Errorf("%w: connection_type kubectl requires a kubectl section", ErrInvalidConfig)
	}
	if c.EffectiveMode() == ModeTunneled {
		t := c.Tunnel
		if t.PodName == "" && t.Service == "" {
			return fmt.Errorf("%w: kubectl.pod_name or kubectl.service is required", ErrInvalidConfig)
		}
		if t.LocalPort <= 0 || t.LocalPort > 65535 {
			return fmt.Errorf("%w: kubectl.port_forward_local_port %d out of range", ErrInvalidConfig, t.LocalPort)
		}
		if t.InternalPort <= 0 || t.InternalPort > 65535 {
			return fmt.Errorf("%w: kubectl.internal_port %d out of range", ErrInvalidConfig, t.InternalPort)
		}
		if t.ReadinessTimeoutSeconds < 0 {
			return fmt.Errorf("%w: kubectl.readiness_timeout_seconds must not be negative", ErrInvalidConfig)
		}
	} else if c.Driver != "sqlite" {
		if c.Host == "" {
			return fmt.Errorf("%w: clickhouse.host is required", ErrInvalidConfig)
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("%w: clickhouse.port %d out of range", ErrInvalidConfig, c.Port)
		}
	}
	if c.Driver == "sqlite" && c.Database == "" {
		return fmt.Errorf("%w: sqlite driver needs database set to a file path", ErrInvalidConfig)
	}
	if c.QueryTimeoutSeconds < 0 {
		return fmt.Errorf("%w: query_timeout_seconds must not be negative", ErrInvalidConfig)
	}

	if len(cfg.Queries) == 0 {
		return fmt.Errorf("%w: no queries configured", ErrInvalidConfig)
	}
	for _, q := range cfg.Queries {
		if strings.TrimSpace(q.SQL) == "" {
			return fmt.Errorf("%w: query %q has no query text", ErrInvalidConfig, q.Key)
		}
	}
	return nil
}

// HistoryPath resolves the run ledger location.
func (cfg *Config) HistoryPath() (string, error) {
	if cfg.History.Path == "" {
		return DefaultHistoryPath()
	}
	return expandHomeDir(cfg.History.Path)
}

// DefaultHistoryPath is ~/.chreport/history.db.
func DefaultHistoryPath() (string, error) {
	return expandHomeDir(filepath.Join("~", ".chreport", "history.db"))
}
