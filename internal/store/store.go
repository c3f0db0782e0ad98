// Package store keeps the output spreadsheet: one header row and one row per
// case, keyed by case number.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/renameio/v2"
	"github.com/xuri/excelize/v2"

	"github.com/ppiankov/caselift/internal/model"
)

// DefaultSheet is the sheet name used for new workbooks
const DefaultSheet = "Cases"

// MaxCellChars is the spreadsheet cell limit; longer values are truncated
const MaxCellChars = 32767

var (
	// ErrCorrupt means the existing file is not a readable workbook or its
	// leading header cells do not match. The file is never overwritten in
	// that case.
	ErrCorrupt = errors.New("output file is corrupt")

	// ErrLocked means the existing file cannot be opened for writing
	ErrLocked = errors.New("output file is not writable")
)

// Table is the in-memory copy of the output sheet. Rows read from an
// existing workbook are never rewritten: a flush reopens the file and
// appends the new rows, so extra columns, sheets and formatting survive.
type Table struct {
	sheet   string
	records []model.CaseRecord
	index   map[string]int // case key -> position in records
	dirty   bool

	fresh      bool // no workbook on disk yet
	needHeader bool
	persisted  int // records already in the workbook
	nextRow    int // sheet row for the next appended record
}

// New returns an empty table
func New() *Table {
	return &Table{
		sheet:      DefaultSheet,
		index:      make(map[string]int),
		fresh:      true,
		needHeader: true,
		nextRow:    2,
	}
}

// Load reads the workbook at path. A missing file yields an empty table.
// Rows with a blank case number are kept but cannot be matched.
func Load(path string) (*Table, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w: is a directory", path, ErrCorrupt)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: %w: no sheets", path, ErrCorrupt)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
	}

	t := &Table{sheet: sheet, index: make(map[string]int), nextRow: len(rows) + 1}
	if len(rows) == 0 {
		if err := checkWritable(path); err != nil {
			return nil, err
		}
		t.needHeader = true
		t.nextRow = 2
		return t, nil
	}
	if err := checkHeader(rows[0]); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
	}

	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		rec := model.RecordFromRow(row)
		t.records = append(t.records, rec)
		key := rec.Key()
		if key == "" {
			continue
		}
		if _, exists := t.index[key]; !exists {
			t.index[key] = len(t.records) - 1
		}
	}

	t.persisted = len(t.records)

	if err := checkWritable(path); err != nil {
		return nil, err
	}
	return t, nil
}

func checkHeader(header []string) error {
	for i, col := range model.Columns {
		var got string
		if i < len(header) {
			got = strings.TrimSpace(header[i])
		}
		if got != col {
			return fmt.Errorf("header column %d is %q, want %q", i+1, got, col)
		}
	}
	return nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func checkWritable(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrLocked, err)
	}
	return f.Close()
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.records)
}

// Has reports whether a row with the case number exists
func (t *Table) Has(caseNumber string) bool {
	_, ok := t.index[model.CaseKey(caseNumber)]
	return ok
}

// Get returns the stored row for a case number
func (t *Table) Get(caseNumber string) (model.CaseRecord, bool) {
	i, ok := t.index[model.CaseKey(caseNumber)]
	if !ok {
		return model.CaseRecord{}, false
	}
	return t.records[i], true
}

// Records returns the rows in sheet order
func (t *Table) Records() []model.CaseRecord {
	out := make([]model.CaseRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Dirty reports whether rows were added since the last flush
func (t *Table) Dirty() bool {
	return t.dirty
}

// Upsert appends rec unless its case number is already present, in which
// case the stored row wins and nothing changes. It reports whether a row
// was appended.
func (t *Table) Upsert(rec model.CaseRecord) (bool, error) {
	key := rec.Key()
	if key == "" {
		return false, model.ErrMissingCaseNumber
	}
	if _, exists := t.index[key]; exists {
		return false, nil
	}
	t.records = append(t.records, rec)
	t.index[key] = len(t.records) - 1
	t.dirty = true
	return true, nil
}

// Flush saves the rows added since the last flush. An existing workbook is
// reopened and the rows are appended after its last row; a new one is
// created with the header. The result replaces path atomically, so a crash
// leaves either the old file or the new one.
func (t *Table) Flush(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := t.workbook(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	pending := t.records[t.persisted:]
	if err := t.appendRows(f, pending); err != nil {
		return err
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644), renameio.WithExistingPermissions())
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	if err := f.Write(pf); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	t.nextRow += len(pending)
	t.persisted = len(t.records)
	t.fresh = false
	t.needHeader = false
	t.dirty = false
	return nil
}

// workbook returns the file the pending rows are appended to
func (t *Table) workbook(path string) (*excelize.File, error) {
	if !t.fresh {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
		}
		if idx, err := f.GetSheetIndex(t.sheet); err != nil || idx < 0 {
			_ = f.Close()
			return nil, fmt.Errorf("%s: %w: sheet %q is gone", path, ErrCorrupt, t.sheet)
		}
		return f, nil
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", t.sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	widths := []float64{22, 40, 80, 60, 60, 40}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetColWidth(t.sheet, col, col, w); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("set width of %s: %w", col, err)
		}
	}
	return f, nil
}

func (t *Table) appendRows(f *excelize.File, records []model.CaseRecord) error {
	if t.needHeader {
		if err := f.SetSheetRow(t.sheet, "A1", &model.Columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for i, rec := range records {
		n := t.nextRow + i
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		row := make([]any, 0, len(model.Columns))
		for _, v := range rec.Row() {
			row = append(row, clampCell(v))
		}
		if err := f.SetSheetRow(t.sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", n, err)
		}
	}
	return nil
}

func clampCell(s string) string {
	if utf8.RuneCountInString(s) <= MaxCellChars {
		return s
	}
	r := []rune(s)
	return string(r[:MaxCellChars])
}
