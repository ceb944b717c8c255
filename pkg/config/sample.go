package config

const sampleHeader = `# chreport configuration
#
# connection_type: direct   connect to clickhouse.host:port as-is
# connection_type: kubectl  start "kubectl port-forward" to the pod (or service)
#                           below and connect to localhost:port_forward_local_port.
#                           With kubectl.enabled: false the direct settings are used.
#
# Environment overrides: CHREPORT_CLICKHOUSE_HOST, CHREPORT_CLICKHOUSE_PORT,
# CHREPORT_CLICKHOUSE_USERNAME, CHREPORT_CLICKHOUSE_PASSWORD,
# CHREPORT_CLICKHOUSE_DATABASE, CHREPORT_CONNECTION_TYPE, CHREPORT_KUBE_CONTEXT,
# CHREPORT_OUTPUT_DIRECTORY, CHREPORT_LOG_LEVEL.
`

// Sample returns the template written when no config file exists.
func Sample() *Config {
	return &Config{
		ClickHouse: ConnectionConfig{
			Mode:     ModeDirect,
			Driver:   "clickhouse",
			Protocol: "http",
			Host:     "localhost",
			Port:     8123,
			Username: "default",
			Password: "changeme",
			Database: "default",
			Tunnel: &TunnelConfig{
				Enabled:      true,
				PodName:      "chi-signoz-clickhouse-cluster-0-0-0",
				Namespace:    "clickhouse",
				InternalPort: 8123,
				LocalPort:    8123,
			},
		},
		Output: OutputConfig{
			Directory:      "./output",
			FilenamePrefix: "daily_report",
		},
		Queries: Queries{
			{
				Key:  "system_metrics",
				Name: "System metrics",
				SQL: `SELECT
    toDate(event_time) AS date,
    metric,
    value
FROM system.metrics
WHERE event_time >= today() - 1
ORDER BY event_time DESC
LIMIT 100
`,
			},
			{
				Key:  "query_log",
				Name: "Query log",
				SQL: `SELECT
    toDate(event_time) AS date,
    query_duration_ms,
    memory_usage,
    query
FROM system.query_log
WHERE event_time >= today() - 1
ORDER BY query_duration_ms DESC
LIMIT 50
`,
			},
		},
		Logging: LoggingConfig{
			Directory: "logs",
			Level:     "info",
		},
	}
}
