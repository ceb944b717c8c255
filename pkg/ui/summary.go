package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/xlttj/chreport/pkg/run"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RenderSummary writes the end-of-run summary. styled adds colors and a
// border for terminals; otherwise the output is plain lines.
func RenderSummary(w io.Writer, out run.Outcome, styled bool) {
	status := StatusSuccess
	if !out.Success {
		status = StatusFailed
	}
	lines := [][2]string{
		{"Run", out.RunID},
		{"Status", status},
		{"Mode", string(out.Mode)},
		{"Queries", fmt.Sprintf("%d run, %d failed", out.QueriesRun, out.QueriesFailed)},
		{"Sheets", fmt.Sprintf("%d", out.ResultsProduced)},
		{"Duration", out.Duration.Round(time.Millisecond).String()},
	}
	if out.ReportPath != "" {
		lines = append(lines, [2]string{"Report", out.ReportPath})
	}
	if out.Err != nil {
		lines = append(lines, [2]string{"Error", fmt.Sprintf("%v (during %s)", out.Err, out.Stage)})
	}

	if !styled {
		for _, l := range lines {
			fmt.Fprintf(w, "%-9s %s\n", l[0]+":", l[1])
		}
		return
	}

	label := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLabel)).Width(10)
	valueColor := ColorSuccess
	if !out.Success {
		valueColor = ColorError
	}
	var b strings.Builder
	for i, l := range lines {
		value := l[1]
		if l[0] == "Status" || l[0] == "Error" {
			value = lipgloss.NewStyle().Foreground(lipgloss.Color(valueColor)).Bold(true).Render(value)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(label.Render(l[0]) + value)
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(valueColor)).
		Padding(0, 1)
	fmt.Fprintln(w, box.Render(b.String()))
}
