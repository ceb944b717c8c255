package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/xlttj/chreport/pkg/command"
	"github.com/xlttj/chreport/pkg/discovery"
)

// newKubectl is swapped in tests.
var newKubectl = func() *discovery.Kubectl {
	return discovery.NewKubectl(command.NewExecRunner())
}

// HandleDiscoverCommand looks for ClickHouse services in the cluster and
// prints a tunneled clickhouse section for the chosen one.
func HandleDiscoverCommand(ctx context.Context, args []string) int {
	discoverCmd := flag.NewFlagSet("discover", flag.ContinueOnError)
	discoverCmd.SetOutput(stderr)
	kubeContext := discoverCmd.String("context", "", "Kubernetes context (default: current context)")
	namespace := discoverCmd.String("namespace", "*", "Namespace filter, wildcards allowed")
	output := discoverCmd.String("o", "", "Write the section to a file instead of stdout")
	acceptAll := discoverCmd.Bool("y", false, "Take the first ClickHouse service without prompting")
	verbose := discoverCmd.Bool("v", false, "Verbose output")
	discoverCmd.Usage = showDiscoverHelp

	if err := discoverCmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	opts := discovery.Options{
		Context:         *kubeContext,
		NamespaceFilter: *namespace,
		OutputFile:      *output,
		AcceptAll:       *acceptAll,
		Verbose:         *verbose,
	}
	if err := discovery.Run(ctx, newKubectl(), opts, stdin, stdout); err != nil {
		if errors.Is(err, discovery.ErrCancelled) {
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func showDiscoverHelp() {
	p := programName()
	fmt.Fprintf(stderr, `%s discover - Find ClickHouse services for a tunneled connection

Usage:
  %s discover [options]

Options:
  -context string     Kubernetes context (default: current context)
  -namespace string   Namespace filter, wildcards allowed (default "*")
  -o string           Write the section to a file instead of stdout
  -y                  Take the first ClickHouse service without prompting
  -v                  Enable verbose output
  -h, --help          Show this help message

Examples:
  %s discover -namespace 'clickhouse-*'
  %s discover -context prod -y -o clickhouse.yaml

Paste the printed clickhouse section into config.yaml.
`, p, p, p, p)
}
