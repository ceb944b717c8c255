package cmd

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xlttj/chreport/pkg/config"
	"github.com/xlttj/chreport/pkg/history"
	"github.com/xlttj/chreport/pkg/ui"
)

// runTUI is swapped in tests.
var runTUI = func(m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// HandleHistoryCommand browses recorded runs, or prunes them with
// "history prune".
func HandleHistoryCommand(args []string) int {
	if len(args) > 0 && args[0] == "prune" {
		return HandlePruneCommand(args[1:])
	}

	historyCmd := flag.NewFlagSet("history", flag.ContinueOnError)
	historyCmd.SetOutput(stderr)
	configPath := historyCmd.String("config", config.DefaultConfigPath, "Config file naming the history database")
	dbPath := historyCmd.String("db", "", "History database (overrides the config)")
	limit := historyCmd.Int("limit", 200, "Maximum number of runs to load")
	list := historyCmd.Bool("list", false, "Print a plain table instead of the interactive browser")
	historyCmd.Usage = showHistoryHelp

	if err := historyCmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	store, err := openHistoryStore(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening run history: %v\n", err)
		return 1
	}
	defer store.Close()

	if *list || stdout != os.Stdout || !ui.IsTerminal(os.Stdout) {
		runs, err := store.Recent(*limit)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading run history: %v\n", err)
			return 1
		}
		printRuns(runs)
		return 0
	}

	if err := runTUI(ui.NewModel(store, *limit)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// openHistoryStore resolves the database from -db, then from the config file
// if one exists, then the default location. It never writes a sample config.
func openHistoryStore(configPath, dbPath string) (*history.Store, error) {
	path := dbPath
	if path == "" {
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := config.Load(configPath)
			if err != nil {
				return nil, err
			}
			if path, err = cfg.HistoryPath(); err != nil {
				return nil, err
			}
		} else if path, err = config.DefaultHistoryPath(); err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}

func printRuns(runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded yet.")
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join([]string{ui.ColStarted, ui.ColStatus, ui.ColStage, ui.ColMode, ui.ColSheets, ui.ColDuration, ui.ColReport}, "\t"))
	for _, r := range runs {
		status := ui.StatusSuccess
		if !r.Success {
			status = ui.StatusFailed
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), status, r.Stage, r.Mode,
			r.ResultsProduced, r.Duration.Round(100*time.Millisecond), r.ReportPath)
	}
	w.Flush()
}

// HandlePruneCommand deletes all but the newest runs.
func HandlePruneCommand(args []string) int {
	pruneCmd := flag.NewFlagSet("prune", flag.ContinueOnError)
	pruneCmd.SetOutput(stderr)
	configPath := pruneCmd.String("config", config.DefaultConfigPath, "Config file naming the history database")
	dbPath := pruneCmd.String("db", "", "History database (overrides the config)")
	keep := pruneCmd.Int("keep", 30, "Number of most recent runs to keep")
	acceptAll := pruneCmd.Bool("y", false, "Delete without prompting")
	verbose := pruneCmd.Bool("v", false, "Verbose output")
	pruneCmd.Usage = showPruneHelp

	if err := pruneCmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *keep < 0 {
		fmt.Fprintln(stderr, "--keep must not be negative")
		return 1
	}

	store, err := openHistoryStore(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening run history: %v\n", err)
		return 1
	}
	defer store.Close()
	if *verbose {
		fmt.Fprintf(stdout, "Prune in %s, keeping %d run(s)\n", store.Path(), *keep)
	}

	stale, err := store.Older(*keep)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading run history: %v\n", err)
		return 1
	}
	if len(stale) == 0 {
		fmt.Fprintf(stdout, "✅ No runs to remove.\n")
		return 0
	}
	fmt.Fprintf(stdout, "Found %d run(s) older than the newest %d:\n", len(stale), *keep)
	if *verbose || len(stale) <= 10 {
		for _, r := range stale {
			fmt.Fprintf(stdout, "  - %s (%s)\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"))
		}
	}
	if !*acceptAll {
		fmt.Fprint(stdout, "Delete these runs from history? [y/N]: ")
		resp, _ := bufio.NewReader(stdin).ReadString('\n')
		resp = strings.TrimSpace(strings.ToLower(resp))
		if resp != "y" && resp != "yes" {
			fmt.Fprintln(stdout, "Aborted.")
			return 0
		}
	}

	deleted := 0
	for _, r := range stale {
		if err := store.Delete(r.ID); err != nil {
			fmt.Fprintf(stderr, "Error deleting %s: %v\n", r.ID, err)
			continue
		}
		deleted++
	}
	fmt.Fprintf(stdout, "🧹 Removed %d run(s).\n", deleted)
	return 0
}

func showHistoryHelp() {
	p := programName()
	fmt.Fprintf(stderr, `%s history - Browse recorded report runs

Usage:
  %s history [options]
  %s history prune [options]

Options:
  -config string   Config file naming the history database (default "config.yaml")
  -db string       History database (overrides the config)
  -limit int       Maximum number of runs to load (default 200)
  -list            Print a plain table instead of the interactive browser
  -h, --help       Show this help message

The browser falls back to the plain table when stdout is not a terminal.
`, p, p, p)
}

func showPruneHelp() {
	p := programName()
	fmt.Fprintf(stderr, `%s history prune - Remove old runs from history

Usage:
  %s history prune [options]

Options:
  -config string   Config file naming the history database (default "config.yaml")
  -db string       History database (overrides the config)
  --keep int       Number of most recent runs to keep (default 30)
  -y               Delete without prompting for confirmation
  -v               Enable verbose output
  -h, --help       Show this help message

Examples:
  %s history prune --keep 90        Keep roughly three months of daily runs
  %s history prune --keep 0 -y      Clear the history without asking
`, p, p, p, p)
}
