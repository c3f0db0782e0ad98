package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/caselift/internal/model"
)

// BuildSystemPrompt returns the fixed instruction for case extraction
func BuildSystemPrompt() string {
	keys := make([]string, len(model.Columns))
	for i, c := range model.Columns {
		keys[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(`You are a legal document parser.
Extract these fields for the ONE case in the document supplied by the user:
%s

Rules:
- Copy the necessary text from the document. Do not rewrite or summarize it.
- "Case Number" is the docket number exactly as printed, for example "G.R. No. 123456".
- Every value is a string. Use "" when the document does not contain the field.
- Output a single valid JSON array containing exactly one object with the exact keys above.
- Enclose every value in double quotes and escape quotes inside values.
- Output only the JSON. No markdown fences and no commentary.`, strings.Join(keys, ", "))
}

// BuildStrictSystemPrompt is used for the single re-ask after an empty reply
func BuildStrictSystemPrompt() string {
	return `OUTPUT ONLY A VALID JSON ARRAY with one object and the keys ` +
		`"Case Number", "Case Title", "Facts", "Decision", "Ruling", "Verdict". ` +
		`No markdown and nothing else.`
}

// BuildUserPrompt wraps the normalized decision text
func BuildUserPrompt(caseText string) string {
	return "Here is the page text to extract from:\n\n" + caseText + "\n\nExtract the case data as JSON per the system instruction."
}
