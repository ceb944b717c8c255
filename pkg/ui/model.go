package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/xlttj/chreport/pkg/history"
	"github.com/xlttj/chreport/pkg/logging"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model is the run history browser.
type Model struct {
	uiState UIState

	source RunSource
	limit  int
	width  int
	height int

	errorMsg  string
	statusMsg string

	runsTable table.Model
	runs      []history.Run // everything loaded from the source
	visible   []history.Run // runs after filtering, in table order

	filterMode  bool
	filterInput textinput.Model

	confirmDelete bool
	detail        *history.Run
}

// calculateColumnWidths returns column widths based on terminal width
func (m *Model) calculateColumnWidths() []table.Column {
	minWidths := map[string]int{
		ColStarted:  19,
		ColStatus:   6,
		ColStage:    10,
		ColMode:     7,
		ColSheets:   6,
		ColDuration: 8,
		ColReport:   10,
	}

	availableWidth := max(m.width-10, 60)
	totalMinWidth := 0
	for _, width := range minWidths {
		totalMinWidth += width
	}

	// All extra space goes to the report path
	reportWidth := minWidths[ColReport] + max(availableWidth-totalMinWidth, 0)

	return []table.Column{
		{Title: ColStarted, Width: minWidths[ColStarted]},
		{Title: ColStatus, Width: minWidths[ColStatus]},
		{Title: ColStage, Width: minWidths[ColStage]},
		{Title: ColMode, Width: minWidths[ColMode]},
		{Title: ColSheets, Width: minWidths[ColSheets]},
		{Title: ColDuration, Width: minWidths[ColDuration]},
		{Title: ColReport, Width: reportWidth},
	}
}

// NewModel loads up to limit runs from source. A load error is shown in
// the view rather than returned.
func NewModel(source RunSource, limit int) *Model {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(ColorSelectedFg)).
		Background(lipgloss.Color(ColorSelectedBg)).
		Bold(false)

	ti := textinput.New()
	ti.Placeholder = "Filter..."
	ti.CharLimit = 156
	ti.Width = 20

	m := &Model{
		uiState:     StateRuns,
		source:      source,
		limit:       limit,
		width:       80, // Updated on first WindowSizeMsg
		height:      24,
		filterInput: ti,
	}
	m.runsTable = table.New(
		table.WithColumns(m.calculateColumnWidths()),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(s),
	)
	m.reload()
	return m
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.runsTable.SetHeight(max(m.height-RunsViewOffset, MinTableHeight))
		m.runsTable.SetColumns(m.calculateColumnWidths())
		m.filterInput.Width = max(m.width-4, 20)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", ShortcutExit:
			return m, tea.Quit
		}

		switch m.uiState {
		case StateRuns:
			return m.updateRuns(msg)
		case StateRunDetail:
			return m.updateRunDetail(msg)
		}
	}
	return m, nil
}

// reload fetches runs from the source and reapplies the filter.
func (m *Model) reload() {
	runs, err := m.source.Recent(m.limit)
	if err != nil {
		logging.LogError("Failed to load run history: %v", err)
		m.errorMsg = fmt.Sprintf("Cannot load history: %v", err)
		return
	}
	m.runs = runs
	m.applyFilter()
}

// applyFilter matches the filter text against every visible column.
func (m *Model) applyFilter() {
	filterText := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
	m.visible = m.visible[:0]
	for _, r := range m.runs {
		if filterText == "" || strings.Contains(strings.ToLower(strings.Join(runRow(r), " ")+" "+r.Error), filterText) {
			m.visible = append(m.visible, r)
		}
	}
	rows := make([]table.Row, 0, len(m.visible))
	for _, r := range m.visible {
		rows = append(rows, runRow(r))
	}
	m.runsTable.SetRows(rows)
	if m.runsTable.Cursor() >= len(rows) {
		m.runsTable.SetCursor(max(len(rows)-1, 0))
	}
}

func runRow(r history.Run) table.Row {
	status := StatusSuccess
	if !r.Success {
		status = StatusFailed
	}
	return table.Row{
		r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		status,
		r.Stage,
		r.Mode,
		fmt.Sprintf("%d", r.ResultsProduced),
		r.Duration.Round(100 * time.Millisecond).String(),
		r.ReportPath,
	}
}

// selectedRun returns the run under the cursor.
func (m *Model) selectedRun() (history.Run, bool) {
	i := m.runsTable.Cursor()
	if i < 0 || i >= len(m.visible) {
		return history.Run{}, false
	}
	return m.visible[i], true
}
