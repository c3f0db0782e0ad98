// Package extract turns a fetched decision page into the plain text handed
// to the model. It isolates the decision body and strips page chrome:
//  1. Removing noise elements (scripts, navigation, forms, media)
//  2. Picking the content container the site adapter names
//  3. Rendering it as text or Markdown, capped at a character limit
package extract

import (
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/caselift/internal/extract/adapters"
)

// Output formats
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// DefaultMaxChars bounds the text sent to the model
const DefaultMaxChars = 285000

// noiseSelectors are removed from every page before extraction
var noiseSelectors = []string{
	"script", "style", "noscript", "template",
	"nav", "footer", "header",
	"img", "picture", "figure", "figcaption",
	"iframe", "video", "audio", "object", "embed",
	"svg", "canvas",
	"form", "button", "input", "select", "textarea",
	".sidebar", ".menu", ".navigation", ".ads", ".advertisement",
}

// Normalizer extracts the decision text from HTML
type Normalizer struct {
	registry *adapters.Registry
	format   string
	maxChars int
}

// NewNormalizer creates a normalizer. A nil registry gets the built-in
// adapters, an unknown format falls back to text, and maxChars <= 0
// disables the cap.
func NewNormalizer(registry *adapters.Registry, format string, maxChars int) *Normalizer {
	if registry == nil {
		registry = adapters.NewRegistry()
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatMarkdown {
		format = FormatText
	}
	return &Normalizer{registry: registry, format: format, maxChars: maxChars}
}

// Normalize returns the readable text of page. It never fails: when no
// container matches, the body or whole document is used.
func (n *Normalizer) Normalize(rawURL, page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return truncateRunes(tidy(page), n.maxChars)
	}

	adapter := n.registry.FindAdapter(rawURL)
	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}
	for _, sel := range adapter.NoiseSelectors(rawURL) {
		doc.Find(sel).Remove()
	}

	content := container(doc, adapter.ContentSelectors(rawURL))

	var text string
	if n.format == FormatMarkdown {
		text = markdown(content)
	}
	if text == "" {
		text = selectionText(content)
	}
	return truncateRunes(text, n.maxChars)
}

// container returns the first selector match with any text, then <body>,
// then the whole document
func container(doc *goquery.Document, selectors []string) *goquery.Selection {
	candidates := make([]string, 0, len(selectors)+1)
	candidates = append(candidates, selectors...)
	candidates = append(candidates, "body")
	for _, s := range candidates {
		sel := doc.Find(s).First()
		if sel.Length() > 0 && strings.TrimSpace(sel.Text()) != "" {
			return sel
		}
	}
	return doc.Selection
}

func markdown(sel *goquery.Selection) string {
	fragment, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(md)
}

func selectionText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		writeText(&b, node)
		b.WriteByte('\n')
	}
	return tidy(b.String())
}

// truncateRunes caps s at max runes
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}
