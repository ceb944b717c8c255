package discovery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xlttj/chreport/pkg/config"
	"github.com/xlttj/chreport/pkg/logging"
)

// ErrCancelled is returned when the user quits the selection.
var ErrCancelled = errors.New("selection cancelled")

// Run scans the cluster, lets the user pick a ClickHouse service and emits
// the matching connection block. Prompts are read from in; everything else
// goes to out.
func Run(ctx context.Context, k *Kubectl, opts Options, in io.Reader, out io.Writer) error {
	result, err := Discover(ctx, k, opts)
	if err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}

	if len(result.Candidates) == 0 {
		fmt.Fprintf(out, "🔍 No ClickHouse services found.\n")
		fmt.Fprintf(out, "   Context: %s\n", result.Context)
		fmt.Fprintf(out, "   Namespace filter: %s\n", result.NamespaceFilter)
		return nil
	}
	fmt.Fprintf(out, "🔍 Found %d ClickHouse service(s) in context '%s'\n\n", len(result.Candidates), result.Context)

	chosen, err := selectCandidate(result.Candidates, opts, in, out)
	if err != nil {
		return err
	}
	if chosen == nil {
		fmt.Fprintln(out, "No service selected. Exiting.")
		return nil
	}
	return writeConnection(*chosen, result.Context, opts, out)
}

// selectCandidate walks the candidates until one is accepted. Nil means
// the user declined them all.
func selectCandidate(candidates []Candidate, opts Options, in io.Reader, out io.Writer) (*Candidate, error) {
	if opts.AcceptAll {
		if opts.Verbose {
			fmt.Fprintf(out, "✅ Auto-selected %s/%s (-y)\n\n", candidates[0].Service.Namespace, candidates[0].Service.Name)
		}
		return &candidates[0], nil
	}

	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "(Press Enter for [Y]es, 'n' for No, 'q' to Quit)\n\n")
	for i := 0; i < len(candidates); i++ {
		c := &candidates[i]
		fmt.Fprintf(out, "🗄️  Service: %s\n", c.Service.Name)
		fmt.Fprintf(out, "   Namespace: %s\n", c.Service.Namespace)
		if c.Service.Type != "" {
			fmt.Fprintf(out, "   Type: %s\n", c.Service.Type)
		}
		fmt.Fprintf(out, "   Port: %d (%s)\n", c.Port.Port, c.Protocol)
		fmt.Fprintf(out, "\n❓ Use this service? [Y/n/q]: ")

		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read user input: %w", err)
		}

		switch strings.TrimSpace(strings.ToLower(response)) {
		case "", "y", "yes":
			return c, nil
		case "n", "no":
			fmt.Fprintf(out, "⏭️  Skipped: %s\n\n", c.Service.Name)
		case "q", "quit":
			fmt.Fprintf(out, "👋 Selection cancelled.\n")
			return nil, ErrCancelled
		default:
			fmt.Fprintf(out, "❌ Invalid response '%s'. Please use y/n/q.\n", strings.TrimSpace(response))
			i--
		}
	}
	return nil, nil
}

// writeConnection renders the clickhouse section for the chosen service,
// ready to paste over the one in config.yaml.
func writeConnection(c Candidate, kubeContext string, opts Options, out io.Writer) error {
	section := struct {
		ClickHouse config.ConnectionConfig `yaml:"clickhouse"`
	}{c.Connection(kubeContext)}

	data, err := yaml.Marshal(&section)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}
	logging.LogInfo("Selected ClickHouse service %s/%s port %d", c.Service.Namespace, c.Service.Name, c.Port.Port)

	if opts.OutputFile == "" {
		fmt.Fprintf(out, "%s", data)
		return nil
	}
	if err := writeToFile(opts.OutputFile, data); err != nil {
		return fmt.Errorf("failed to write connection file: %w", err)
	}
	fmt.Fprintf(out, "💾 Connection saved to: %s\n", opts.OutputFile)
	return nil
}

// writeToFile writes content to a file, creating directories if needed
func writeToFile(filename string, content []byte) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	if err := os.WriteFile(filename, content, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filename, err)
	}
	return nil
}
