package ui

// Table Column Titles
const (
	ColStarted  = "STARTED"
	ColStatus   = "STATUS"
	ColStage    = "STAGE"
	ColMode     = "MODE"
	ColSheets   = "SHEETS"
	ColDuration = "DURATION"
	ColReport   = "REPORT"
)

// Key hints
const (
	ActionRunsNav    = "↑/↓: Navigate | enter: Details | d: Delete | /: Filter | ctrl+r: Reload | q: Quit"
	ActionRunsNarrow = "enter:Details | d:Delete | /:Filter | q:Quit"
	ActionRunDetail  = "esc: Back | ctrl+r: Reload | q: Quit"
	ActionConfirm    = "y: Delete | any other key: Cancel"
)

// Keyboard shortcuts
const (
	ShortcutExit   = "ctrl+x"
	ShortcutReload = "ctrl+r"
)

// Layout
const (
	MinTableHeight = 4
	RunsViewOffset = 8 // non-table lines in the runs view
	NarrowWidth    = 80
)

const (
	StatusSuccess = "OK"
	StatusFailed  = "FAILED"
)

// Lipgloss Colors
const (
	ColorBorder     = "240"
	ColorSelectedFg = "229"
	ColorSelectedBg = "57"
	ColorTitle      = "14"  // Cyan for titles
	ColorHelp       = "245" // Grey for help text
	ColorError      = "9"   // Red for errors
	ColorSuccess    = "10"  // Green
	ColorLabel      = "11"  // Yellow
)
