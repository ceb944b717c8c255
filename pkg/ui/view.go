package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the current model state
func (m *Model) View() string {
	switch m.uiState {
	case StateRuns:
		return m.viewRuns()
	case StateRunDetail:
		return m.viewRunDetail()
	}
	return "Unknown state"
}

func (m *Model) viewRuns() string {
	titleText := fmt.Sprintf("Report Runs (%d)", len(m.runs))
	if len(m.visible) != len(m.runs) {
		titleText = fmt.Sprintf("Report Runs (%d of %d)", len(m.visible), len(m.runs))
	}
	title := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTitle)).Bold(true).Render(titleText)

	help := ActionRunsNav
	if m.width < NarrowWidth {
		help = ActionRunsNarrow
	}
	if m.confirmDelete {
		help = ActionConfirm
	}
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
	helpText := helpStyle.Render(help)

	tableView := lipgloss.PlaceHorizontal(m.width, lipgloss.Left, m.runsTable.View())
	if len(m.visible) == 0 {
		tableView = helpStyle.Render("No runs recorded yet.")
	}

	var filterView string
	switch {
	case m.filterMode:
		filterView = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1).
			Render("Filter: " + m.filterInput.View())
	case m.filterInput.Value() != "":
		filterView = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("8")).
			Foreground(lipgloss.Color("8")).
			Padding(0, 1).
			Render(fmt.Sprintf("Filter: %s (Press / to edit, Esc to clear)", m.filterInput.Value()))
	default:
		// placeholder keeps the layout from shifting
		filterView = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Foreground(lipgloss.Color(ColorBorder)).
			Padding(0, 1).
			Render("Press / to filter...")
	}

	top := title
	if m.width >= NarrowWidth {
		if spacing := m.width - lipgloss.Width(title) - lipgloss.Width(helpText); spacing > 0 {
			top = lipgloss.JoinHorizontal(lipgloss.Left, title, strings.Repeat(" ", spacing), helpText)
		}
	}

	parts := []string{top, "", filterView, tableView}
	if msg := m.messageText(); msg != "" {
		parts = append(parts, msg)
	}
	if m.width < NarrowWidth || m.confirmDelete {
		parts = append(parts, helpText)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) messageText() string {
	if m.confirmDelete {
		if r, ok := m.selectedRun(); ok {
			return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLabel)).
				Render(fmt.Sprintf("Delete run %s from history?", r.ID))
		}
	}
	if m.errorMsg != "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("ERROR: " + m.errorMsg)
	}
	if m.statusMsg != "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess)).Render(m.statusMsg)
	}
	return ""
}

func (m *Model) viewRunDetail() string {
	r := m.detail
	if r == nil {
		return "No run selected"
	}
	title := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTitle)).Bold(true).Render("Run " + r.ID)
	label := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLabel)).Width(10)

	status := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess)).Render(StatusSuccess)
	if !r.Success {
		status = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render(StatusFailed)
	}
	row := runRow(*r)
	lines := []string{
		title,
		"",
		label.Render("Started") + row[0],
		label.Render("Status") + status,
		label.Render("Stage") + r.Stage,
		label.Render("Mode") + r.Mode,
		label.Render("Sheets") + row[4],
		label.Render("Duration") + row[5],
		label.Render("Report") + r.ReportPath,
	}
	if r.Error != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Width(max(m.width-10, 40))
		lines = append(lines, label.Render("Error")+errStyle.Render(r.Error))
	}
	if msg := m.messageText(); msg != "" {
		lines = append(lines, "", msg)
	}
	lines = append(lines, "", lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp)).Render(ActionRunDetail))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
