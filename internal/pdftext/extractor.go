// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdftext converts a PDF file into reading-ordered plain text,
// handling single- and two-column page layouts.
package pdftext

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// defaultPageWidth is the US Letter width in points, used when a page
// carries no resolvable MediaBox.
const defaultPageWidth = 612.0

// lineYTolerance is the maximum baseline distance (points) between two
// fragments considered part of the same text line.
const lineYTolerance = 2.5

// columnMinLines is the per-side line count above which a page is treated
// as two-column.
const columnMinLines = 3

// Extract reads pdfPath and returns its plain text in reading order.
// Pages are concatenated with a blank-line separator. A page that fails to
// parse is skipped; producing no text at all from any page is an error.
// If positioned extraction fails outright, a simpler whole-page text pass
// is attempted; when both fail the returned error names both causes.
func Extract(pdfPath string) (string, error) {
	text, primaryErr := extractPositioned(pdfPath)
	if primaryErr == nil {
		return text, nil
	}

	text, fallbackErr := extractPlain(pdfPath)
	if fallbackErr == nil {
		return text, nil
	}

	return "", fmt.Errorf("pdf text extraction failed (positioned: %v; plain: %v)", primaryErr, fallbackErr)
}

// Extractor adapts Extract to the pipeline's stage interface.
type Extractor struct{}

func (Extractor) Extract(pdfPath string) (string, error) {
	return Extract(pdfPath)
}

// fragment is one positioned text run on a page. Y follows PDF user space,
// origin bottom-left, so larger Y means closer to the top of the page.
type fragment struct {
	x, y, w float64
	s       string
}

// extractPositioned is the primary strategy: per-page positioned fragments
// assembled into lines, with column-aware ordering.
func extractPositioned(pdfPath string) (text string, err error) {
	defer func() {
		// ledongthuc/pdf panics on some malformed files.
		if r := recover(); r != nil {
			err = fmt.Errorf("positioned extraction panicked: %v", r)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var parts []string
	for i := 1; i <= r.NumPage(); i++ {
		pageText, ok := extractPage(r.Page(i))
		if ok && pageText != "" {
			parts = append(parts, pageText)
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text extracted from any page")
	}
	return strings.Join(parts, "\n\n"), nil
}

// extractPage renders one page to text. Failures are contained to the page:
// the ok result is false and the caller skips it.
func extractPage(page pdf.Page) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	if page.V.IsNull() {
		return "", false
	}

	var frags []fragment
	for _, t := range page.Content().Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		frags = append(frags, fragment{x: t.X, y: t.Y, w: t.W, s: t.S})
	}
	if len(frags) == 0 {
		return "", false
	}

	lines := assembleLines(frags)
	ordered := orderForReading(lines, pageWidth(page))

	out := make([]string, 0, len(ordered))
	for _, ln := range ordered {
		out = append(out, strings.TrimSpace(ln.text()))
	}
	return strings.Join(out, "\n"), true
}

// line is a group of fragments sharing a baseline.
type line struct {
	y     float64 // baseline
	x0    float64 // leftmost start
	x1    float64 // rightmost end
	frags []fragment
}

func (l *line) text() string {
	var b strings.Builder
	for i, f := range l.frags {
		if i > 0 && needsSpace(l.frags[i-1], f) {
			b.WriteByte(' ')
		}
		b.WriteString(f.s)
	}
	return b.String()
}

// needsSpace reports whether a horizontal gap between consecutive fragments
// is wide enough to have been a word break in the source layout.
func needsSpace(prev, cur fragment) bool {
	gap := cur.x - (prev.x + prev.w)
	return gap > 1.0 && !strings.HasSuffix(prev.s, " ") && !strings.HasPrefix(cur.s, " ")
}

// assembleLines groups fragments into lines by baseline proximity and sorts
// each line's fragments left to right.
func assembleLines(frags []fragment) []*line {
	sorted := make([]fragment, len(frags))
	copy(sorted, frags)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].y != sorted[j].y {
			return sorted[i].y > sorted[j].y // top of page first
		}
		return sorted[i].x < sorted[j].x
	})

	var lines []*line
	for _, f := range sorted {
		var cur *line
		if len(lines) > 0 {
			last := lines[len(lines)-1]
			if last.y-f.y < lineYTolerance {
				cur = last
			}
		}
		if cur == nil {
			cur = &line{y: f.y, x0: f.x, x1: f.x + f.w}
			lines = append(lines, cur)
		}
		cur.frags = append(cur.frags, f)
		if f.x < cur.x0 {
			cur.x0 = f.x
		}
		if f.x+f.w > cur.x1 {
			cur.x1 = f.x + f.w
		}
	}

	for _, l := range lines {
		sort.Slice(l.frags, func(i, j int) bool { return l.frags[i].x < l.frags[j].x })
	}
	return lines
}

// orderForReading arranges lines in human reading order. Lines are
// partitioned against the page's horizontal midpoint; when both sides hold
// more than columnMinLines lines the page is read as two columns, left
// column top-to-bottom then right column. Otherwise lines are read in plain
// (top, left) order.
func orderForReading(lines []*line, width float64) []*line {
	mid := width / 2

	var left, right, rest []*line
	for _, l := range lines {
		switch {
		case l.x0 < mid && l.x1 < mid*1.2:
			left = append(left, l)
		case l.x0 > mid*0.8:
			right = append(right, l)
		default:
			rest = append(rest, l)
		}
	}

	if len(left) > columnMinLines && len(right) > columnMinLines {
		byTop := func(ls []*line) {
			sort.SliceStable(ls, func(i, j int) bool { return ls[i].y > ls[j].y })
		}
		byTop(left)
		byTop(right)
		byTop(rest)
		// Full-width lines (titles, headers) read before the columns.
		ordered := make([]*line, 0, len(lines))
		ordered = append(ordered, rest...)
		ordered = append(ordered, left...)
		ordered = append(ordered, right...)
		return ordered
	}

	ordered := make([]*line, len(lines))
	copy(ordered, lines)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].y != ordered[j].y {
			return ordered[i].y > ordered[j].y
		}
		return ordered[i].x0 < ordered[j].x0
	})
	return ordered
}

// pageWidth resolves the page's MediaBox width, walking the Parent chain
// for inherited boxes, with a US Letter default.
func pageWidth(page pdf.Page) float64 {
	v := page.V
	for depth := 0; depth < 10 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			llx := numeric(box.Index(0))
			urx := numeric(box.Index(2))
			if urx > llx {
				return urx - llx
			}
		}
		v = v.Key("Parent")
	}
	return defaultPageWidth
}

func numeric(v pdf.Value) float64 {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64())
	case pdf.Real:
		return v.Float64()
	}
	return 0
}

// extractPlain is the fallback strategy: whole-page text with no layout
// analysis.
func extractPlain(pdfPath string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plain extraction panicked: %v", r)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var parts []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(pageText) == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(pageText))
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text extracted from any page")
	}
	return strings.Join(parts, "\n\n"), nil
}
