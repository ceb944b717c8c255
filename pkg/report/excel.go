// Package report renders query results into an .xlsx workbook.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/xlttj/chreport/pkg/logging"
	"github.com/xlttj/chreport/pkg/query"
)

var (
	ErrReportWriteFailed = errors.New("report write failed")
	ErrNoResults         = errors.New("no query returned data")
)

const (
	maxSheetName   = 31
	maxColumnWidth = 50
	headerFill     = "366092"
	reportPerm     = 0644
)

var invalidSheetChars = strings.NewReplacer(
	":", "_", `\`, "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_",
)

// Writer writes one workbook per run to Dir/Prefix_YYYYMMDD.xlsx.
type Writer struct {
	Dir    string
	Prefix string
	Now    func() time.Time
}

func NewWriter(dir, prefix string) *Writer {
	return &Writer{Dir: dir, Prefix: prefix, Now: time.Now}
}

// Path is the file a Write on the current day produces.
func (w *Writer) Path() string {
	return filepath.Join(w.Dir, fmt.Sprintf("%s_%s.xlsx", w.Prefix, w.Now().Format("20060102")))
}

// Write creates one sheet per result that has rows and returns the report
// path. The workbook is written to a temporary file first, so a failure
// never leaves a partial report under the final name.
func (w *Writer) Write(results []query.Result) (string, error) {
	var kept []query.Result
	for _, r := range results {
		if len(r.Rows) == 0 {
			logging.LogWarn("No data returned for query %s, skipping sheet", r.Name)
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return "", ErrNoResults
	}

	path := w.Path()
	if err := w.write(path, kept); err != nil {
		logging.LogError("Error generating report %s: %v", path, err)
		return "", fmt.Errorf("%w: %s: %w", ErrReportWriteFailed, path, err)
	}
	logging.LogInfo("Report written: %s (%d sheets)", path, len(kept))
	return path, nil
}

func (w *Writer) write(path string, results []query.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	names := newSheetNamer()
	for i, r := range results {
		sheet := names.next(r.DisplayName)
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), sheet)
		} else {
			_, err = f.NewSheet(sheet)
		}
		if err != nil {
			return fmt.Errorf("sheet %q: %w", sheet, err)
		}
		if err := writeSheet(f, sheet, r, header); err != nil {
			return fmt.Errorf("sheet %q: %w", sheet, err)
		}
		logging.LogDebug("Sheet %q: %d rows from query %s", sheet, len(r.Rows), r.Name)
	}
	f.SetActiveSheet(0)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// CreateTemp creates the file as 0600.
	if err := os.Chmod(tmp.Name(), reportPerm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeSheet(f *excelize.File, sheet string, r query.Result, headerStyle int) error {
	widths := make([]int, len(r.Columns))
	header := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c
		widths[i] = utf8.RuneCountInString(c)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(max(len(r.Columns), 1), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range r.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
		for j, v := range row {
			if j < len(widths) {
				widths[j] = max(widths[j], utf8.RuneCountInString(cellText(v)))
			}
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, float64(min(w+2, maxColumnWidth))); err != nil {
			return err
		}
	}
	return nil
}

func cellText(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// sheetNamer turns display names into valid, unique sheet names. Excel
// compares sheet names case-insensitively.
type sheetNamer struct {
	used map[string]bool
}

func newSheetNamer() *sheetNamer {
	return &sheetNamer{used: make(map[string]bool)}
}

func (n *sheetNamer) next(display string) string {
	base := strings.Trim(invalidSheetChars.Replace(display), "'")
	if strings.TrimSpace(base) == "" {
		base = "Sheet"
	}
	name := truncate(base, maxSheetName)
	for i := 2; n.used[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	n.used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
