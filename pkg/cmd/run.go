package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/xlttj/chreport/pkg/command"
	"github.com/xlttj/chreport/pkg/config"
	"github.com/xlttj/chreport/pkg/database"
	"github.com/xlttj/chreport/pkg/history"
	"github.com/xlttj/chreport/pkg/k8s"
	"github.com/xlttj/chreport/pkg/logging"
	"github.com/xlttj/chreport/pkg/report"
	"github.com/xlttj/chreport/pkg/run"
	"github.com/xlttj/chreport/pkg/ui"
)

// newConnector builds the production connector; tests replace it.
var newConnector = func() run.Connector {
	return database.NewSupervisor(k8s.NewManager(command.NewExecRunner()))
}

// HandleRunCommand generates the report and returns the process exit code.
func HandleRunCommand(ctx context.Context, args []string) int {
	runCmd := flag.NewFlagSet("run", flag.ContinueOnError)
	runCmd.SetOutput(stderr)
	configPath := runCmd.String("config", config.DefaultConfigPath, "Path to the YAML config file")
	noHistory := runCmd.Bool("no-history", false, "Do not record this run in the history database")
	plain := runCmd.Bool("plain", false, "Print the summary without colors")
	runCmd.Usage = showRunHelp

	if err := runCmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigCreated) {
			fmt.Fprintf(stderr, "Config file %s not found. A sample was written; edit it and run again.\n", *configPath)
			return 1
		}
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	if err := logging.Init(cfg.Logging.Directory, logging.ParseLevel(cfg.Logging.Level)); err != nil {
		fmt.Fprintf(stderr, "Warning: logging to file disabled: %v\n", err)
	}
	defer logging.Close()

	ctrl := run.NewController(cfg, newConnector(), report.NewWriter(cfg.Output.Directory, cfg.Output.FilenamePrefix))
	if !cfg.History.Disabled && !*noHistory {
		if store := openHistory(cfg); store != nil {
			defer store.Close()
			ctrl.History = store
		}
	}

	out := ctrl.Run(ctx)
	ui.RenderSummary(stdout, out, !*plain && stdout == os.Stdout && ui.IsTerminal(os.Stdout))
	return out.ExitCode()
}

// openHistory returns nil when the ledger cannot be opened; the run goes on
// without it.
func openHistory(cfg *config.Config) *history.Store {
	path, err := cfg.HistoryPath()
	if err != nil {
		logging.LogWarn("Run history disabled: %v", err)
		return nil
	}
	store, err := history.Open(path)
	if err != nil {
		logging.LogWarn("Run history disabled: %v", err)
		return nil
	}
	return store
}

func showRunHelp() {
	p := programName()
	fmt.Fprintf(stderr, `%s run - Generate the daily report

Connects to the configured database, runs every query in order and writes
one sheet per query that returned rows. With connection_type: kubectl a
port-forward is started first and always stopped before exit.

Usage:
  %s run [options]

Options:
  -config string   Path to the YAML config file (default "config.yaml")
  -no-history      Do not record this run in the history database
  -plain           Print the summary without colors
  -h, --help       Show this help message

Exit status is 0 when a report was written and 1 otherwise.
`, p, p)
}
