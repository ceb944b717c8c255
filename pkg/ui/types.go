package ui

import "github.com/xlttj/chreport/pkg/history"

// UIState represents the different views of the history browser
type UIState int

const (
	StateRuns      UIState = iota // Run list
	StateRunDetail                // Single run
)

// RunSource is the part of the history store the browser needs.
type RunSource interface {
	Recent(limit int) ([]history.Run, error)
	Get(id string) (history.Run, error)
	Delete(id string) error
}
