package config

// Mode selects how the database is reached.
type Mode string

const (
	ModeDirect   Mode = "direct"
	ModeTunneled Mode = "kubectl"
)

// Config is the whole report definition loaded from config.yaml.
type Config struct {
	ClickHouse ConnectionConfig `yaml:"clickhouse"`
	Output     OutputConfig     `yaml:"output"`
	Queries    Queries          `yaml:"queries"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	History    HistoryConfig    `yaml:"history,omitempty"`
}

// ConnectionConfig describes the analytical database and how to reach it.
type ConnectionConfig struct {
	Mode     Mode   `yaml:"connection_type"`
	Driver   string `yaml:"driver,omitempty"`   // clickhouse, postgres or sqlite
	Protocol string `yaml:"protocol,omitempty"` // clickhouse only: http or native
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	QueryTimeoutSeconds int `yaml:"query_timeout_seconds,omitempty"`

	Tunnel *TunnelConfig `yaml:"kubectl,omitempty"`
}

// TunnelConfig holds the kubectl port-forward parameters.
type TunnelConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	PodName                 string `yaml:"pod_name,omitempty"`
	Service                 string `yaml:"service,omitempty"`
	Namespace               string `yaml:"namespace"`
	InternalPort            int    `yaml:"internal_port"`
	LocalPort               int    `yaml:"port_forward_local_port"`
	Context                 string `yaml:"context,omitempty"`
	ReadinessTimeoutSeconds int    `yaml:"readiness_timeout_seconds,omitempty"`
}

// Target returns the port-forward resource argument: a pod name or svc/<name>.
func (t TunnelConfig) Target() string {
	if t.PodName != "" {
		return t.PodName
	}
	return "svc/" + t.Service
}

// OutputConfig controls where the spreadsheet lands.
type OutputConfig struct {
	Directory      string `yaml:"directory"`
	FilenamePrefix string `yaml:"filename_prefix"`
}

type LoggingConfig struct {
	Directory string `yaml:"directory,omitempty"`
	Level     string `yaml:"level,omitempty"`
}

// HistoryConfig points at the SQLite run ledger. An empty path means
// ~/.chreport/history.db.
type HistoryConfig struct {
	Disabled bool   `yaml:"disabled,omitempty"`
	Path     string `yaml:"path,omitempty"`
}

// Query is one configured report query. Key is the mapping key in the YAML
// file; Name is the display name used for the sheet.
type Query struct {
	Key  string `yaml:"-"`
	Name string `yaml:"name"`
	SQL  string `yaml:"query"`
}

// DisplayName falls back to the key when no name is configured.
func (q Query) DisplayName() string {
	if q.Name != "" {
		return q.Name
	}
	return q.Key
}

// EffectiveMode applies the tunnel fallback: a tunneled connection whose
// kubectl section is disabled is treated as direct.
func (c ConnectionConfig) EffectiveMode() Mode {
	if c.Mode == ModeTunneled && c.Tunnel != nil && !c.Tunnel.Enabled {
		return ModeDirect
	}
	return c.Mode
}
