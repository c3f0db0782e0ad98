// Package links reads and writes the URL list that drives a run, and
// collects case links from listing pages.
package links

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// InvalidLine is a line of the links file that is not an absolute URL
type InvalidLine struct {
	Line int
	Text string
	Err  error
}

func (l InvalidLine) String() string {
	return fmt.Sprintf("line %d: %q: %v", l.Line, l.Text, l.Err)
}

// ReadFile reads URLs from a file, one per line. Blank lines are ignored,
// duplicates are kept once in first-seen order, and lines that are not
// absolute http(s) URLs are returned separately so the caller can log them.
func ReadFile(filePath string) ([]string, []InvalidLine, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	var invalid []InvalidLine
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := CheckURL(line); err != nil {
			invalid = append(invalid, InvalidLine{Line: lineNo, Text: line, Err: err})
			continue
		}
		if !seen[line] {
			seen[line] = true
			urls = append(urls, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan file: %w", err)
	}

	return urls, invalid, nil
}

// CheckURL reports whether raw is an absolute http or https URL
func CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// WriteFile writes urls one per line, replacing the file
func WriteFile(filePath string, urls []string) error {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	var b strings.Builder
	for _, u := range urls {
		b.WriteString(u)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(filePath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filePath, err)
	}
	return nil
}
