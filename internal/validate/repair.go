package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Repair step names, recorded on the attempt in the order they were applied
const (
	RepairFirstValue     = "first-value"
	RepairStripFences    = "strip-fences"
	RepairExtractSpan    = "extract-span"
	RepairTrailingCommas = "trailing-commas"
	RepairEscapeStrings  = "escape-strings"
	RepairCloseTruncated = "close-truncated"
)

type repairStep struct {
	name string
	fn   func(string) string
}

// repairChain is applied cumulatively; parsing is retried after each step
// that changed the text.
var repairChain = []repairStep{
	{RepairStripFences, stripFences},
	{RepairExtractSpan, extractSpan},
	{RepairTrailingCommas, stripTrailingCommas},
	{RepairEscapeStrings, escapeStrings},
	{RepairCloseTruncated, closeTruncated},
}

var errNoValue = errors.New("no JSON value found")

// parseLenient decodes text strictly first, then through the repair chain.
// It returns the decoded value and the repairs that were needed.
func parseLenient(text string) (any, []string, error) {
	v, strictErr := decodeStrict(text)
	if strictErr == nil {
		return v, nil, nil
	}

	// Valid JSON followed by chatter
	if v, err := decodeFirst(text); err == nil {
		return v, []string{RepairFirstValue}, nil
	}

	var applied []string
	current := text
	for _, step := range repairChain {
		next := step.fn(current)
		if next == current {
			continue
		}
		current = next
		applied = append(applied, step.name)
		if v, err := decodeFirst(current); err == nil {
			return v, applied, nil
		}
	}

	return nil, applied, strictErr
}

// decodeStrict decodes s as exactly one JSON value. Numbers stay
// json.Number on every path so a numeric case number keys the same way
// whether or not the reply needed repair.
func decodeStrict(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid character after top-level value at offset %d", dec.InputOffset())
	}
	return v, nil
}

// decodeFirst decodes the first JSON value in s, ignoring anything after it.
// Only objects and arrays count; a bare scalar is not a candidate record.
func decodeFirst(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoValue
		}
		return nil, err
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	}
	return nil, errNoValue
}

func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimLeft(body, "jsonJSON")
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// extractSpan drops prose before the first bracket. Trailing prose is cut
// only when it cannot be the rest of a truncated document.
func extractSpan(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	s = s[start:]
	last := strings.LastIndexAny(s, "}]")
	if last >= 0 {
		tail := s[last+1:]
		if !strings.ContainsAny(tail, `":`) {
			s = s[:last+1]
		}
	}
	return strings.TrimSpace(s)
}

// stripTrailingCommas removes commas that directly precede a closing
// bracket or the end of input. Commas inside strings are kept.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		if c == '"' {
			inStr = true
		}
		if c == ',' {
			j := skipSpace(s, i+1)
			if j >= len(s) || s[j] == '}' || s[j] == ']' {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeStrings escapes raw control characters and stray double quotes
// inside string literals. A quote closes the string only when what follows
// it looks like JSON structure.
func escapeStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inStr {
			if c == '"' {
				inStr = true
			}
			b.WriteByte(c)
			continue
		}
		if esc {
			esc = false
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			esc = true
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '"':
			if closesString(s, i) {
				inStr = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		default:
			if c < 0x20 {
				continue
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

func closesString(s string, i int) bool {
	j := skipSpace(s, i+1)
	if j >= len(s) {
		return true
	}
	switch s[j] {
	case '}', ']', ':':
		return true
	case ',':
		k := skipSpace(s, j+1)
		if k >= len(s) {
			return true
		}
		switch s[k] {
		case '"', '}', ']', '{', '[':
			return true
		}
	}
	return false
}

// closeTruncated terminates an open string and closes open brackets in
// nesting order. A dangling key gets an empty value.
func closeTruncated(s string) string {
	var stack []byte
	inStr, esc := false, false
	strIsKey := false
	var prev byte // last structural byte outside strings
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
				prev = '"'
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
			strIsKey = len(stack) > 0 && stack[len(stack)-1] == '}' && (prev == '{' || prev == ',')
		case '{':
			stack = append(stack, '}')
			prev = c
		case '[':
			stack = append(stack, ']')
			prev = c
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			prev = c
		case ',', ':':
			prev = c
		default:
			if !unicode.IsSpace(rune(c)) {
				prev = c
			}
		}
	}
	if len(stack) == 0 && !inStr {
		return s
	}

	out := s
	danglingKey := false
	if inStr {
		if esc {
			out = out[:len(out)-1]
		}
		out += `"`
		danglingKey = strIsKey
	} else if prev == '"' && strIsKey {
		danglingKey = true
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	out = strings.TrimSuffix(out, ",")
	if danglingKey || strings.HasSuffix(out, ":") {
		out = strings.TrimSuffix(out, ":")
		out += `: ""`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\r' || s[i] == '\t') {
		i++
	}
	return i
}
