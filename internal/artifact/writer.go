// Package artifact writes debug files for extraction attempts that did not
// parse cleanly, so the raw model output can be inspected after a run.
package artifact

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/caselift/internal/model"
)

const maxSlugLen = 80

// Writer names and writes artifacts for one run
type Writer struct {
	dir   string
	runID string
	now   func() time.Time

	mu  sync.Mutex
	seq int
}

// NewWriter returns a writer rooted at dir. The directory is created on the
// first write.
func NewWriter(dir, runID string) *Writer {
	return &Writer{dir: dir, runID: runID, now: time.Now}
}

// Dir returns the artifact directory
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores the attempt for docURL and returns the file path. The model
// input is included only for empty responses, where the raw output has
// nothing to show.
func (w *Writer) Write(docURL string, att model.ExtractionAttempt, input string) (string, error) {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", w.dir, err)
	}

	name := fmt.Sprintf("%s-%04d-%s-%s.txt", shortID(w.runID), seq, att.Classification, filenameFromURL(docURL))
	fullPath := filepath.Join(w.dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "# url: %s\n", docURL)
	fmt.Fprintf(&b, "# run: %s\n", w.runID)
	fmt.Fprintf(&b, "# time: %s\n", w.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# classification: %s\n", att.Classification)
	if att.Reason != "" {
		fmt.Fprintf(&b, "# reason: %s\n", oneLine(att.Reason))
	}
	if len(att.Repairs) > 0 {
		fmt.Fprintf(&b, "# repairs: %s\n", strings.Join(att.Repairs, ", "))
	}
	if len(att.MissingFields) > 0 {
		fmt.Fprintf(&b, "# missing: %s\n", strings.Join(att.MissingFields, ", "))
	}
	b.WriteString("\n--- response ---\n")
	b.WriteString(att.Raw)
	b.WriteString("\n")
	if att.Classification == model.ClassEmpty && input != "" {
		b.WriteString("\n--- input ---\n")
		b.WriteString(input)
		b.WriteString("\n")
	}

	if err := os.WriteFile(fullPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing file %s: %w", fullPath, err)
	}
	return fullPath, nil
}

func shortID(runID string) string {
	s := sanitize(runID)
	if len(s) > 8 {
		s = s[:8]
	}
	if s == "" {
		s = "run"
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// filenameFromURL flattens a URL into a filename fragment.
// Example: https://example.com/docs/intro -> example_com_docs_intro
func filenameFromURL(rawURL string) string {
	var parts []string
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		parts = []string{sanitize(rawURL)}
	} else {
		parts = []string{sanitize(parsed.Host)}
		if p := strings.Trim(parsed.Path, "/"); p != "" {
			for _, seg := range strings.Split(p, "/") {
				parts = append(parts, sanitize(seg))
			}
		}
	}
	s := strings.Join(parts, "_")
	if len(s) > maxSlugLen {
		s = s[len(s)-maxSlugLen:]
	}
	return s
}

// sanitize replaces non-alphanumeric characters with underscores
func sanitize(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '-' {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
