package model

import (
	"errors"
	"strings"
)

// ErrMissingCaseNumber is returned when a record cannot be keyed
var ErrMissingCaseNumber = errors.New("record has no case number")

// Spreadsheet column headers, in persisted order
const (
	ColCaseNumber = "Case Number"
	ColCaseTitle  = "Case Title"
	ColFacts      = "Facts"
	ColDecision   = "Decision"
	ColRuling     = "Ruling"
	ColVerdict    = "Verdict"
)

// Columns is the fixed header row of the output sheet
var Columns = []string{ColCaseNumber, ColCaseTitle, ColFacts, ColDecision, ColRuling, ColVerdict}

// CaseRecord is the six-field summary of one legal case document
type CaseRecord struct {
	CaseNumber string `json:"Case Number"`
	CaseTitle  string `json:"Case Title"`
	Facts      string `json:"Facts"`
	Decision   string `json:"Decision"`
	Ruling     string `json:"Ruling"`
	Verdict    string `json:"Verdict"`
}

// Row returns the record's values in column order
func (r CaseRecord) Row() []string {
	return []string{r.CaseNumber, r.CaseTitle, r.Facts, r.Decision, r.Ruling, r.Verdict}
}

// RecordFromRow builds a record from a sheet row. Short rows are padded
// with empty strings; extra cells are ignored.
func RecordFromRow(row []string) CaseRecord {
	cells := make([]string, len(Columns))
	copy(cells, row)
	return CaseRecord{
		CaseNumber: cells[0],
		CaseTitle:  cells[1],
		Facts:      cells[2],
		Decision:   cells[3],
		Ruling:     cells[4],
		Verdict:    cells[5],
	}
}

// Key returns the de-duplication key for the record
func (r CaseRecord) Key() string {
	return CaseKey(r.CaseNumber)
}

// CaseKey normalizes a case number for matching: trimmed, inner whitespace
// collapsed, upper-cased. The stored value is never rewritten.
func CaseKey(caseNumber string) string {
	return strings.ToUpper(strings.Join(strings.Fields(caseNumber), " "))
}
