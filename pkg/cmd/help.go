package cmd

import (
	"fmt"
	"io"
	"os"
)

// Swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

func programName() string {
	return os.Args[0]
}

// HandleHelpCommand displays help information for the application
func HandleHelpCommand() int {
	showMainHelp()
	return 0
}

// showMainHelp displays the main application help
func showMainHelp() {
	p := programName()
	fmt.Fprintf(stdout, `chreport - ClickHouse daily report generator

Runs the queries from a YAML config against ClickHouse (or PostgreSQL /
SQLite), directly or through a kubectl port-forward, and writes the results
to an Excel workbook with one sheet per query.

Usage:
  %s [command] [options]

Available Commands:
  run        Generate the report (default when no command is given)
  init       Write a sample config file
  discover   Find ClickHouse services to tunnel to
  history    Browse past runs; "history prune" removes old ones
  help       Show help information

Options:
  -h, --help  Show help information

Examples:
  %s                                  Run with ./config.yaml
  %s run -config /etc/chreport.yaml   Run with another config
  %s init -config report.yaml         Write a sample config
  %s discover -namespace 'ch-*'       Suggest a kubectl section
  %s history                          Browse recorded runs
  %s history prune --keep 30 -y       Keep only the 30 newest runs

Environment:
  CHREPORT_CLICKHOUSE_HOST, CHREPORT_CLICKHOUSE_PORT, CHREPORT_CLICKHOUSE_USERNAME,
  CHREPORT_CLICKHOUSE_PASSWORD, CHREPORT_CLICKHOUSE_DATABASE,
  CHREPORT_CONNECTION_TYPE, CHREPORT_KUBE_CONTEXT, CHREPORT_OUTPUT_DIRECTORY,
  CHREPORT_LOG_LEVEL override the matching config values.

For more information about a specific command, use:
  %s <command> --help
`, p, p, p, p, p, p, p, p)
}
