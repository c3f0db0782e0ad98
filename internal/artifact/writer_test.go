package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/caselift/internal/model"
)

func TestWrite_NamesAndHeader(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "0123456789abcdef")

	att := model.ExtractionAttempt{
		Raw:            `{"Case Number": "G.R. No. 1",`,
		Classification: model.ClassUnrecoverable,
		Reason:         "unparseable JSON:\nunexpected end",
		Repairs:        []string{"trailing-commas"},
	}
	path, err := w.Write("https://elibrary.judiciary.gov.ph/thebookshelf/showdocs/1/12345", att, "page text")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, "01234567-0001-malformed-unrecoverable-elibrary_judiciary_gov_ph_thebookshelf_showdocs_1_12345.txt", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "# classification: malformed-unrecoverable\n")
	assert.Contains(t, body, "# reason: unparseable JSON: unexpected end\n")
	assert.Contains(t, body, "# repairs: trailing-commas\n")
	assert.Contains(t, body, att.Raw)
	assert.NotContains(t, body, "page text")
}

func TestWrite_EmptyIncludesInput(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "nested", "debug"), "run")

	path, err := w.Write("https://example.com/a", model.ExtractionAttempt{Classification: model.ClassEmpty}, "the model input")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "--- input ---\nthe model input")
}

func TestWrite_SequenceIsUnique(t *testing.T) {
	w := NewWriter(t.TempDir(), "run")
	att := model.ExtractionAttempt{Classification: model.ClassEmpty}

	a, err := w.Write("https://example.com/same", att, "")
	require.NoError(t, err)
	b, err := w.Write("https://example.com/same", att, "")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.Contains(filepath.Base(b), "-0002-"))
}

func TestFilenameFromURL_Long(t *testing.T) {
	name := filenameFromURL("https://example.com/" + strings.Repeat("segment/", 40))
	assert.LessOrEqual(t, len(name), maxSlugLen)
}
