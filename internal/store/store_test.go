package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ppiankov/caselift/internal/model"
)

func rec(number, title string) model.CaseRecord {
	return model.CaseRecord{
		CaseNumber: number,
		CaseTitle:  title,
		Facts:      "facts of " + number,
		Decision:   "decision",
		Ruling:     "ruling",
		Verdict:    "verdict",
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	tbl, err := Load(filepath.Join(t.TempDir(), "none.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.False(t, tbl.Dirty())
}

func TestFlushAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "cases.xlsx")

	tbl := New()
	added, err := tbl.Upsert(rec("G.R. No. 1", "A v. B"))
	require.NoError(t, err)
	require.True(t, added)
	_, err = tbl.Upsert(rec("G.R. No. 2", "C v. D"))
	require.NoError(t, err)
	require.True(t, tbl.Dirty())

	require.NoError(t, tbl.Flush(path))
	assert.False(t, tbl.Dirty())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	got, ok := loaded.Get("G.R. No. 2")
	require.True(t, ok)
	assert.Equal(t, rec("G.R. No. 2", "C v. D"), got)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestUpsert_FirstWriteWins(t *testing.T) {
	tbl := New()
	_, err := tbl.Upsert(rec("G.R. No. 1", "Old Title"))
	require.NoError(t, err)

	added, err := tbl.Upsert(rec("G.R. No. 1", "New Title"))
	require.NoError(t, err)
	assert.False(t, added)

	got, ok := tbl.Get("G.R. No. 1")
	require.True(t, ok)
	assert.Equal(t, "Old Title", got.CaseTitle)
	assert.Equal(t, 1, tbl.Len())
}

func TestUpsert_KeyNormalization(t *testing.T) {
	tbl := New()
	_, err := tbl.Upsert(rec("G.R. No. 1", "A"))
	require.NoError(t, err)

	added, err := tbl.Upsert(rec("  g.r.  no. 1 ", "B"))
	require.NoError(t, err)
	assert.False(t, added)
	assert.True(t, tbl.Has("G.R. NO. 1"))
}

func TestUpsert_MissingCaseNumber(t *testing.T) {
	tbl := New()
	added, err := tbl.Upsert(rec("  ", "A"))
	assert.ErrorIs(t, err, model.ErrMissingCaseNumber)
	assert.False(t, added)
	assert.Equal(t, 0, tbl.Len())
}

func TestLoad_KeepsUnkeyedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	writeWorkbook(t, path, model.Columns, []string{"", "orphan title"}, []string{"G.R. No. 9", "kept"})

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.True(t, tbl.Has("G.R. No. 9"))

	_, err = tbl.Upsert(rec("G.R. No. 10", "new"))
	require.NoError(t, err)
	require.NoError(t, tbl.Flush(path))

	again, err := Load(path)
	require.NoError(t, err)
	records := again.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "orphan title", records[0].CaseTitle)
}

func TestLoad_CustomSheetNamePreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Decisions"))
	require.NoError(t, f.SetSheetRow("Decisions", "A1", &model.Columns))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, tbl.Flush(path))

	out, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = out.Close() }()
	assert.Equal(t, []string{"Decisions"}, out.GetSheetList())
}

func TestLoad_CorruptFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	garbage := []byte("this is not a workbook")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrCorrupt)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, after)
}

func TestLoad_HeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	writeWorkbook(t, path, []string{"Number", "Title"})

	_, err := Load(path)
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "header column 1")
}

func TestFlush_ClampsLongCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	long := rec("G.R. No. 1", "A")
	long.Facts = strings.Repeat("x", MaxCellChars+100)

	tbl := New()
	_, err := tbl.Upsert(long)
	require.NoError(t, err)
	require.NoError(t, tbl.Flush(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	got, _ := loaded.Get("G.R. No. 1")
	assert.Len(t, got.Facts, MaxCellChars)
}

func TestFlush_KeepsExtraColumnsAndSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	header := append(append([]string{}, model.Columns...), "Notes")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	first := []string{"G.R. No. 1", "Old Title", "f", "d", "r", "v", "curated note"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &first))
	_, err := f.NewSheet("Reviewer")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Reviewer", "A1", "checked by J."))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := Load(path)
	require.NoError(t, err)
	_, err = tbl.Upsert(rec("G.R. No. 2", "New"))
	require.NoError(t, err)
	require.NoError(t, tbl.Flush(path))

	out, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = out.Close() }()

	assert.Equal(t, []string{"Sheet1", "Reviewer"}, out.GetSheetList())
	rows, err := out.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, first, rows[1])
	assert.Equal(t, rec("G.R. No. 2", "New").Row(), rows[2])

	note, err := out.GetCellValue("Reviewer", "A1")
	require.NoError(t, err)
	assert.Equal(t, "checked by J.", note)
}

func TestFlush_AppendsAcrossFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")

	tbl := New()
	_, err := tbl.Upsert(rec("G.R. No. 1", "A"))
	require.NoError(t, err)
	require.NoError(t, tbl.Flush(path))

	// A cell edited by hand between flushes is not overwritten
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue(DefaultSheet, "G2", "hand edit"))
	require.NoError(t, f.Save())
	require.NoError(t, f.Close())

	_, err = tbl.Upsert(rec("G.R. No. 2", "B"))
	require.NoError(t, err)
	require.NoError(t, tbl.Flush(path))

	out, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = out.Close() }()
	rows, err := out.GetRows(DefaultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, model.Columns, rows[0])
	assert.Equal(t, "hand edit", rows[1][6])
	assert.Equal(t, "G.R. No. 2", rows[2][0])
}

func TestFlush_HeaderlessSheetGetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := Load(path)
	require.NoError(t, err)
	_, err = tbl.Upsert(rec("G.R. No. 1", "A"))
	require.NoError(t, err)
	require.NoError(t, tbl.Flush(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Has("G.R. No. 1"))
}

func writeWorkbook(t *testing.T, path string, header []string, rows ...[]string) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}
