package cmd

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/xlttj/chreport/pkg/config"
)

// HandleInitCommand writes the sample config.
func HandleInitCommand(args []string) int {
	initCmd := flag.NewFlagSet("init", flag.ContinueOnError)
	initCmd.SetOutput(stderr)
	configPath := initCmd.String("config", config.DefaultConfigPath, "Where to write the sample config")
	force := initCmd.Bool("force", false, "Overwrite an existing file")
	initCmd.Usage = func() {
		p := programName()
		fmt.Fprintf(stderr, `%s init - Write a sample config file

Usage:
  %s init [options]

Options:
  -config string   Where to write the sample config (default "config.yaml")
  -force           Overwrite an existing file
  -h, --help       Show this help message
`, p, p)
	}

	if err := initCmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if _, err := os.Stat(*configPath); err == nil && !*force {
		fmt.Fprintf(stderr, "%s already exists; use -force to overwrite it.\n", *configPath)
		return 1
	}
	if err := config.WriteSample(*configPath); err != nil {
		fmt.Fprintf(stderr, "Error writing sample config: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "✅ Sample config written to %s\n", *configPath)
	return 0
}
