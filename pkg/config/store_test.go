package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const tunneledYAML = `
clickhouse:
  connection_type: kubectl
  host: ch.internal
  port: 9000
  username: reporter
  password: secret
  database: analytics
  kubectl:
    enabled: true
    pod_name: chi-0
    namespace: clickhouse
    internal_port: 8123
    port_forward_local_port: 18123
    context: prod
queries:
  zeta:
    name: Last sheet first
    query: SELECT 1
  alpha:
    name: Second
    query: SELECT 2
  mid:
    query: SELECT 3
`

func TestParseKeepsQueryOrder(t *testing.T) {
	cfg, err := Parse([]byte(tunneledYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var keys []string
	for _, q := range cfg.Queries {
		keys = append(keys, q.Key)
	}
	if got := strings.Join(keys, ","); got != "zeta,alpha,mid" {
		t.Errorf("query order = %s, want zeta,alpha,mid", got)
	}
	if cfg.Queries[2].DisplayName() != "mid" {
		t.Errorf("DisplayName() without name = %q, want key", cfg.Queries[2].DisplayName())
	}
	if cfg.ClickHouse.EffectiveMode() != ModeTunneled {
		t.Errorf("EffectiveMode() = %s, want kubectl", cfg.ClickHouse.EffectiveMode())
	}
	if cfg.ClickHouse.Tunnel.Target() != "chi-0" {
		t.Errorf("Target() = %q", cfg.ClickHouse.Tunnel.Target())
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
clickhouse:
  host: localhost
  port: 8123
queries:
  q:
    query: SELECT 1
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.ClickHouse.Mode != ModeDirect || cfg.ClickHouse.Driver != "clickhouse" || cfg.ClickHouse.Protocol != "http" {
		t.Errorf("connection defaults = %+v", cfg.ClickHouse)
	}
	if cfg.Output.Directory != "./output" || cfg.Output.FilenamePrefix != "daily_report" {
		t.Errorf("output defaults = %+v", cfg.Output)
	}
	if cfg.Logging.Directory != "logs" || cfg.Logging.Level != "info" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
}

func TestDisabledTunnelFallsBackToDirect(t *testing.T) {
	cfg, err := Parse([]byte(`
clickhouse:
  connection_type: kubectl
  host: 10.0.0.5
  port: 8123
  kubectl:
    enabled: false
    namespace: clickhouse
queries:
  q:
    query: SELECT 1
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := cfg.ClickHouse.EffectiveMode(); got != ModeDirect {
		t.Errorf("EffectiveMode() = %s, want direct", got)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown mode",
			yaml: "clickhouse: {connection_type: ssh, host: h, port: 1}\nqueries: {q: {query: SELECT 1}}",
			want: "connection_type",
		},
		{
			name: "tunneled without kubectl section",
			yaml: "clickhouse: {connection_type: kubectl, host: h, port: 1}\nqueries: {q: {query: SELECT 1}}",
			want: "requires a kubectl section",
		},
		{
			name: "tunneled without target",
			yaml: "clickhouse: {connection_type: kubectl, kubectl: {enabled: true, namespace: ns}}\nqueries: {q: {query: SELECT 1}}",
			want: "pod_name or kubectl.service",
		},
		{
			name: "direct without host",
			yaml: "clickhouse: {port: 8123}\nqueries: {q: {query: SELECT 1}}",
			want: "host is required",
		},
		{
			name: "no queries",
			yaml: "clickhouse: {host: h, port: 8123}",
			want: "no queries",
		},
		{
			name: "empty query text",
			yaml: "clickhouse: {host: h, port: 8123}\nqueries: {q: {name: Q}}",
			want: "no query text",
		},
		{
			name: "queries not a mapping",
			yaml: "clickhouse: {host: h, port: 8123}\nqueries: [SELECT 1]",
			want: "must be a mapping",
		},
		{
			name: "bad driver",
			yaml: "clickhouse: {driver: oracle, host: h, port: 1}\nqueries: {q: {query: SELECT 1}}",
			want: "driver",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v is not ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHREPORT_CLICKHOUSE_HOST", "db.example")
	t.Setenv("CHREPORT_CLICKHOUSE_PASSWORD", "from-env")
	t.Setenv("CHREPORT_CONNECTION_TYPE", "tunneled")
	t.Setenv("CHREPORT_KUBE_CONTEXT", "staging")

	cfg, err := Parse([]byte(tunneledYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	c := cfg.ClickHouse
	if c.Host != "db.example" || c.Password != "from-env" {
		t.Errorf("env overrides not applied: %+v", c)
	}
	if c.Mode != ModeTunneled {
		t.Errorf("mode alias not normalised: %s", c.Mode)
	}
	if c.Tunnel.Context != "staging" {
		t.Errorf("kube context = %q, want staging", c.Tunnel.Context)
	}
}

func TestLoadMissingWritesSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	_, err := Load(path)
	if !errors.Is(err, ErrConfigCreated) {
		t.Fatalf("Load() error = %v, want ErrConfigCreated", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("sample permissions = %v, want 0600", info.Mode().Perm())
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of generated sample error = %v", err)
	}
	if len(cfg.Queries) != 2 || cfg.Queries[0].Key != "system_metrics" || cfg.Queries[1].Key != "query_log" {
		t.Errorf("sample queries = %+v", cfg.Queries)
	}
	if !strings.Contains(cfg.Queries[0].SQL, "FROM system.metrics") {
		t.Errorf("sample query text lost: %q", cfg.Queries[0].SQL)
	}
}
