package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides are read from CHREPORT_* variables. Zero values mean unset.
type envOverrides struct {
	Host            string `envconfig:"CLICKHOUSE_HOST"`
	Port            int    `envconfig:"CLICKHOUSE_PORT"`
	Username        string `envconfig:"CLICKHOUSE_USERNAME"`
	Password        string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database        string `envconfig:"CLICKHOUSE_DATABASE"`
	Mode            string `envconfig:"CONNECTION_TYPE"`
	KubeContext     string `envconfig:"KUBE_CONTEXT"`
	OutputDirectory string `envconfig:"OUTPUT_DIRECTORY"`
	LogLevel        string `envconfig:"LOG_LEVEL"`
}

const envPrefix = "CHREPORT"

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process(envPrefix, &o); err != nil {
		return fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}

	c := &cfg.ClickHouse
	if o.Host != "" {
		c.Host = o.Host
	}
	if o.Port != 0 {
		c.Port = o.Port
	}
	if o.Username != "" {
		c.Username = o.Username
	}
	if o.Password != "" {
		c.Password = o.Password
	}
	if o.Database != "" {
		c.Database = o.Database
	}
	if o.Mode != "" {
		c.Mode = Mode(o.Mode)
		// re-run normalisation for aliases like "tunneled"
		applyDefaults(cfg)
	}
	if o.KubeContext != "" && c.Tunnel != nil {
		c.Tunnel.Context = o.KubeContext
	}
	if o.OutputDirectory != "" {
		cfg.Output.Directory = o.OutputDirectory
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return nil
}
