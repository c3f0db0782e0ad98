package validate

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ppiankov/caselift/internal/model"
)

// recordSchema is the final gate on a mapped record
const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["Case Number", "Case Title", "Facts", "Decision", "Ruling", "Verdict"],
  "additionalProperties": false,
  "properties": {
    "Case Number": {"type": "string", "pattern": "\\S"},
    "Case Title":  {"type": "string"},
    "Facts":       {"type": "string"},
    "Decision":    {"type": "string"},
    "Ruling":      {"type": "string"},
    "Verdict":     {"type": "string"}
  }
}`

// fieldAliases maps normalized response keys (letters and digits only,
// lower-cased) to column indices
var fieldAliases = map[string]int{
	"casenumber":   0,
	"caseno":       0,
	"casenum":      0,
	"grno":         0,
	"docketnumber": 0,
	"casetitle":    1,
	"title":        1,
	"casename":     1,
	"facts":        2,
	"fact":         2,
	"decision":     3,
	"ruling":       4,
	"rulings":      4,
	"verdict":      5,
	"dispositive":  5,
}

// Validator classifies raw model responses into extraction attempts
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the record schema
func NewValidator() (*Validator, error) {
	schema, err := jsonschema.CompileString("caserecord.json", recordSchema)
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

var defaultValidator = sync.OnceValue(func() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
})

// Classify runs raw through the shared validator
func Classify(raw string) model.ExtractionAttempt {
	return defaultValidator().Classify(raw)
}

// Classify turns a raw response into an attempt. It never fails: problems
// are expressed through the attempt's classification and reason.
func (v *Validator) Classify(raw string) model.ExtractionAttempt {
	att := model.ExtractionAttempt{Raw: raw}

	text := strings.TrimSpace(raw)
	if text == "" {
		att.Classification = model.ClassEmpty
		att.Reason = "empty response"
		return att
	}

	val, repairs, err := parseLenient(text)
	att.Repairs = repairs
	if err != nil {
		att.Classification = model.ClassUnrecoverable
		att.Reason = fmt.Sprintf("unparseable JSON: %v", err)
		return att
	}

	obj, ok := pickObject(val, 1)
	if !ok {
		att.Classification = model.ClassUnrecoverable
		att.Reason = "response is not a JSON object"
		return att
	}

	rec, missing := mapFields(obj)
	att.MissingFields = missing
	if strings.TrimSpace(rec.CaseNumber) == "" {
		att.Classification = model.ClassUnrecoverable
		att.Reason = model.ErrMissingCaseNumber.Error()
		return att
	}

	if err := v.schema.Validate(recordDocument(rec)); err != nil {
		att.Classification = model.ClassUnrecoverable
		att.Reason = fmt.Sprintf("schema: %v", err)
		return att
	}

	att.Record = &rec
	if len(repairs) == 0 {
		att.Classification = model.ClassOK
	} else {
		att.Classification = model.ClassRepaired
	}
	return att
}

// pickObject accepts an object, or an array whose first object element is
// taken. A single-key wrapper like {"case": {...}} is unwrapped up to depth.
func pickObject(v any, depth int) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		if hasKnownKey(t) || depth == 0 || len(t) != 1 {
			return t, true
		}
		for _, inner := range t {
			if m, ok := pickObject(inner, depth-1); ok && hasKnownKey(m) {
				return m, true
			}
		}
		return t, true
	case []any:
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				return pickObject(m, depth)
			}
		}
	}
	return nil, false
}

func hasKnownKey(m map[string]any) bool {
	for k := range m {
		if _, ok := fieldAliases[normalizeKey(k)]; ok {
			return true
		}
	}
	return false
}

// mapFields copies known keys into a record. Keys that are absent or null
// are coerced to "" and reported as missing. When several keys name the
// same column, an exact column name wins over aliases, and aliases are
// taken in sorted order; the first non-empty value is kept.
func mapFields(obj map[string]any) (model.CaseRecord, []string) {
	cells := make([]string, len(model.Columns))
	seen := make([]bool, len(model.Columns))
	for _, k := range orderedKeys(obj) {
		val := obj[k]
		idx, ok := fieldAliases[normalizeKey(k)]
		if !ok || seen[idx] && cells[idx] != "" {
			continue
		}
		if val == nil {
			continue
		}
		cells[idx] = stringify(val)
		seen[idx] = true
	}

	var missing []string
	for i, col := range model.Columns {
		if !seen[i] {
			missing = append(missing, col)
		}
	}
	return model.RecordFromRow(cells), missing
}

func orderedKeys(obj map[string]any) []string {
	keys := slices.Sorted(maps.Keys(obj))
	slices.SortStableFunc(keys, func(a, b string) int {
		ea, eb := slices.Contains(model.Columns, a), slices.Contains(model.Columns, b)
		switch {
		case ea && !eb:
			return -1
		case eb && !ea:
			return 1
		}
		return 0
	})
	return keys
}

func normalizeKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := stringify(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func recordDocument(rec model.CaseRecord) map[string]any {
	doc := make(map[string]any, len(model.Columns))
	for i, v := range rec.Row() {
		doc[model.Columns[i]] = v
	}
	return doc
}
