package model

// Classification tags the outcome of turning a model response into a record
type Classification string

const (
	ClassOK            Classification = "ok"                      // Parsed as-is
	ClassEmpty         Classification = "empty"                   // No text (provider-side filtering)
	ClassRepaired      Classification = "malformed-repaired"      // Parsed after repair
	ClassUnrecoverable Classification = "malformed-unrecoverable" // Could not be turned into a record
)

// HasRecord reports whether the classification carries a usable record
func (c Classification) HasRecord() bool {
	return c == ClassOK || c == ClassRepaired
}

// ExtractionAttempt is the per-URL result of classifying a model response.
// Only non-ok attempts leave a trace on disk, as debug artifacts.
type ExtractionAttempt struct {
	Raw            string
	Classification Classification
	Record         *CaseRecord
	MissingFields  []string // Keys coerced to "" (validation gap)
	Repairs        []string // Repair steps applied, in order
	Reason         string   // Why the attempt is not ok
}
