// Package importer turns an XHTML document into plain text plus the
// formatting records the session merges with ImportRecords.
//
// The supported subset is h1 to h4, b and strong, i and em, u,
// blockquote, paragraph breaks from p, div and li, and br. Anything
// else contributes its text only.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/dshills/storyline/internal/format"
)

// ErrNoContent is returned when a document has no text.
var ErrNoContent = errors.New("document has no text")

// Document is an imported document.
type Document struct {
	// Title is the head title, or the text of the first heading.
	Title string

	// Text is the plain text with paragraph breaks as newlines.
	Text string

	// Records are the formatting ranges found, with same-kind overlaps
	// coalesced. They have no IDs.
	Records []format.Range
}

var (
	bodyExpr  = xpath.MustCompile("//body")
	titleExpr = xpath.MustCompile("//head/title")
)

// entities covers the HTML named entities common in exported
// manuscripts; the XML parser only knows the five predefined ones.
var entities = strings.NewReplacer(
	"&nbsp;", "&#160;",
	"&ndash;", "&#8211;",
	"&mdash;", "&#8212;",
	"&hellip;", "&#8230;",
	"&lsquo;", "&#8216;",
	"&rsquo;", "&#8217;",
	"&ldquo;", "&#8220;",
	"&rdquo;", "&#8221;",
	"&copy;", "&#169;",
)

// element describes how a tag contributes to the output.
type element struct {
	kind  format.Kind
	level int
	block bool
}

var elements = map[string]element{
	"b":          {kind: format.KindBold},
	"strong":     {kind: format.KindBold},
	"i":          {kind: format.KindItalic},
	"em":         {kind: format.KindItalic},
	"u":          {kind: format.KindUnderline},
	"h1":         {kind: format.KindHeading, level: 1, block: true},
	"h2":         {kind: format.KindHeading, level: 2, block: true},
	"h3":         {kind: format.KindHeading, level: 3, block: true},
	"h4":         {kind: format.KindHeading, level: 4, block: true},
	"blockquote": {kind: format.KindQuote, block: true},
	"p":          {block: true},
	"div":        {block: true},
	"li":         {block: true},
	"ul":         {block: true},
	"ol":         {block: true},
}

var skipped = map[string]bool{
	"head":   true,
	"script": true,
	"style":  true,
}

// Parse reads an XHTML document.
func Parse(r io.Reader) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	root, err := xmlquery.Parse(bytes.NewReader([]byte(entities.Replace(string(raw)))))
	if err != nil {
		return nil, fmt.Errorf("parsing XHTML: %w", err)
	}

	top := xmlquery.QuerySelector(root, bodyExpr)
	if top == nil {
		top = root
	}

	var w writer
	w.walk(top)
	w.trimTrailing()
	if w.n == 0 {
		return nil, ErrNoContent
	}

	doc := &Document{
		Text:    w.b.String(),
		Records: Coalesce(w.records),
	}
	if t := xmlquery.QuerySelector(root, titleExpr); t != nil {
		doc.Title = collapse(t.InnerText())
	}
	if doc.Title == "" {
		doc.Title = firstHeading(doc)
	}
	return doc, nil
}

func firstHeading(doc *Document) string {
	runes := []rune(doc.Text)
	for _, r := range doc.Records {
		if r.Kind == format.KindHeading {
			return strings.TrimSpace(string(runes[r.Start:r.End]))
		}
	}
	return ""
}

// writer accumulates text and records while walking the tree.
type writer struct {
	b       strings.Builder
	n       int
	last    rune
	records []format.Range
}

func (w *writer) walk(n *xmlquery.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			w.text(c.Data)
		case xmlquery.ElementNode:
			w.element(c)
		}
	}
}

func (w *writer) element(n *xmlquery.Node) {
	name := strings.ToLower(n.Data)
	if skipped[name] {
		return
	}
	if name == "br" {
		w.emit('\n')
		return
	}

	el, known := elements[name]
	if el.block {
		w.lineBreak()
	}
	start := w.n
	w.walk(n)
	if el.block && w.last == ' ' {
		w.unemit()
	}
	end := w.n
	if el.block {
		// A trailing br inside the block is not part of its range.
		if end > start && w.last == '\n' {
			end--
		}
		w.lineBreak()
	}

	if known && el.kind.Valid() && end > start {
		w.records = append(w.records, format.Range{Start: start, End: end, Kind: el.kind, Level: el.level})
	}
}

// text appends character data with runs of whitespace collapsed.
func (w *writer) text(s string) {
	for _, r := range s {
		if r != '\u00a0' && unicode.IsSpace(r) {
			if w.n == 0 || w.last == ' ' || w.last == '\n' {
				continue
			}
			r = ' '
		}
		w.emit(r)
	}
}

// lineBreak ends the current line unless it is already empty.
func (w *writer) lineBreak() {
	if w.n == 0 || w.last == '\n' {
		return
	}
	if w.last == ' ' {
		w.unemit()
	}
	w.emit('\n')
}

func (w *writer) emit(r rune) {
	w.b.WriteRune(r)
	w.n++
	w.last = r
}

// unemit drops the last rune, which is always a single-byte space.
func (w *writer) unemit() {
	s := w.b.String()[:w.b.Len()-1]
	w.b.Reset()
	w.b.WriteString(s)
	w.n--
	w.last, _ = utf8.DecodeLastRuneInString(s)
	if w.n == 0 {
		w.last = 0
	}
	w.clip()
}

func (w *writer) trimTrailing() {
	for w.n > 0 && (w.last == '\n' || w.last == ' ') {
		w.unemit()
	}
}

// clip keeps every record inside the text after a trim.
func (w *writer) clip() {
	out := w.records[:0]
	for _, r := range w.records {
		r.End = min(r.End, w.n)
		if r.Start < r.End {
			out = append(out, r)
		}
	}
	w.records = out
}

// Coalesce merges records of the same kind and level that overlap or
// touch. The result is ordered by start.
func Coalesce(records []format.Range) []format.Range {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b format.Range) int {
		if a.Kind != b.Kind {
			return int(a.Kind) - int(b.Kind)
		}
		if a.Level != b.Level {
			return a.Level - b.Level
		}
		return a.Start - b.Start
	})

	var out []format.Range
	for _, r := range sorted {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if prev.Kind == r.Kind && prev.Level == r.Level && r.Start <= prev.End {
				prev.End = max(prev.End, r.End)
				continue
			}
		}
		out = append(out, r)
	}

	slices.SortStableFunc(out, func(a, b format.Range) int { return a.Start - b.Start })
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
