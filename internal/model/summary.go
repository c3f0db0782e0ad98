package model

// Outcome is what happened to one document in a run
type Outcome string

const (
	OutcomeAppended      Outcome = "appended"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeEmpty         Outcome = "skipped-empty"
	OutcomeMalformed     Outcome = "skipped-malformed"
	OutcomeFetchFailed   Outcome = "failed-fetch"
	OutcomeExtractFailed Outcome = "failed-extract"
)

// RunSummary counts per-document outcomes for the end-of-run report
type RunSummary struct {
	RunID            string `json:"run_id"`
	Total            int    `json:"total"`
	Processed        int    `json:"processed"`
	Duplicates       int    `json:"duplicates"`
	Repaired         int    `json:"repaired"`
	SkippedEmpty     int    `json:"skipped_empty"`
	SkippedMalformed int    `json:"skipped_malformed"`
	FailedFetch      int    `json:"failed_fetch"`
	FailedExtract    int    `json:"failed_extract"`
	Flushes          int    `json:"flushes"`
	Rows             int    `json:"rows"`
}

// Record counts one outcome
func (s *RunSummary) Record(o Outcome) {
	s.Total++
	switch o {
	case OutcomeAppended:
		s.Processed++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeEmpty:
		s.SkippedEmpty++
	case OutcomeMalformed:
		s.SkippedMalformed++
	case OutcomeFetchFailed:
		s.FailedFetch++
	case OutcomeExtractFailed:
		s.FailedExtract++
	}
}

// Skipped returns the number of documents that produced no new row
func (s *RunSummary) Skipped() int {
	return s.SkippedEmpty + s.SkippedMalformed + s.FailedFetch + s.FailedExtract
}
