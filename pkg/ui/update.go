package ui

import (
	"errors"
	"fmt"

	"github.com/xlttj/chreport/pkg/history"

	"github.com/xlttj/chreport/pkg/logging"

	tea "github.com/charmbracelet/bubbletea"
)

// updateRuns handles keys in the run list
func (m *Model) updateRuns(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.confirmDelete {
		m.confirmDelete = false
		if msg.String() == "y" {
			return m.deleteSelected()
		}
		m.statusMsg = "Delete cancelled"
		return m, nil
	}

	if m.filterMode {
		switch msg.String() {
		case "esc":
			m.filterMode = false
			m.filterInput.Blur()
			m.filterInput.SetValue("")
			m.applyFilter()
			m.runsTable.Focus()
			return m, nil
		case "enter":
			// keep the filter applied
			m.filterMode = false
			m.filterInput.Blur()
			m.runsTable.Focus()
			return m, nil
		default:
			m.filterInput, cmd = m.filterInput.Update(msg)
			m.applyFilter()
			return m, cmd
		}
	}

	switch msg.String() {
	case "/":
		m.errorMsg = ""
		m.statusMsg = ""
		m.filterMode = true
		m.filterInput.Focus()
		m.runsTable.Blur()
		return m, nil
	case "q":
		return m, tea.Quit
	case "esc":
		if m.filterInput.Value() != "" {
			m.filterInput.SetValue("")
			m.applyFilter()
		}
		return m, nil
	case ShortcutReload:
		m.errorMsg = ""
		m.reload()
		m.statusMsg = fmt.Sprintf("Loaded %d runs", len(m.runs))
		return m, nil
	case "enter":
		if r, ok := m.selectedRun(); ok {
			m.openDetail(r.ID)
		}
		return m, nil
	case "d":
		m.errorMsg = ""
		m.statusMsg = ""
		if _, ok := m.selectedRun(); ok {
			m.confirmDelete = true
		}
		return m, nil
	}

	m.runsTable, cmd = m.runsTable.Update(msg)
	return m, cmd
}

func (m *Model) deleteSelected() (tea.Model, tea.Cmd) {
	r, ok := m.selectedRun()
	if !ok {
		return m, nil
	}
	if err := m.source.Delete(r.ID); err != nil {
		logging.LogError("Failed to delete run %s: %v", r.ID, err)
		m.errorMsg = fmt.Sprintf("Cannot delete run: %v", err)
		return m, nil
	}
	m.reload()
	m.statusMsg = fmt.Sprintf("Deleted run %s", r.ID)
	return m, nil
}

// openDetail reads the run from the store rather than the loaded list, so
// the view reflects deletions made since the last reload.
func (m *Model) openDetail(id string) {
	m.errorMsg = ""
	r, err := m.source.Get(id)
	if err != nil {
		logging.LogError("Failed to load run %s: %v", id, err)
		if errors.Is(err, history.ErrRunNotFound) {
			m.errorMsg = fmt.Sprintf("Run %s is no longer in history", id)
			m.detail = nil
			m.uiState = StateRuns
			m.reload()
			return
		}
		m.errorMsg = fmt.Sprintf("Cannot load run: %v", err)
		return
	}
	m.detail = &r
	m.uiState = StateRunDetail
}

// updateRunDetail handles keys in the detail view
func (m *Model) updateRunDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case ShortcutReload:
		if m.detail != nil {
			m.openDetail(m.detail.ID)
		}
	case "esc", "enter", "backspace":
		m.detail = nil
		m.uiState = StateRuns
	}
	return m, nil
}
