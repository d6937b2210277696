// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"strings"
	"testing"
)

// frag is shorthand for building test fragments.
func frag(x, y, w float64, s string) fragment {
	return fragment{x: x, y: y, w: w, s: s}
}

func renderLines(lines []*line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, strings.TrimSpace(l.text()))
	}
	return out
}

func TestAssembleLinesGroupsByBaseline(t *testing.T) {
	frags := []fragment{
		frag(72, 700, 30, "Deep"),
		frag(110, 700.8, 50, "learning"),
		frag(72, 680, 40, "models"),
	}

	lines := assembleLines(frags)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	got := renderLines(lines)
	if got[0] != "Deep learning" {
		t.Errorf("first line = %q, want %q", got[0], "Deep learning")
	}
	if got[1] != "models" {
		t.Errorf("second line = %q, want %q", got[1], "models")
	}
}

func TestAssembleLinesOrdersFragmentsLeftToRight(t *testing.T) {
	frags := []fragment{
		frag(200, 500, 40, "world"),
		frag(72, 500, 40, "hello"),
	}

	lines := assembleLines(frags)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if got := renderLines(lines)[0]; got != "hello world" {
		t.Errorf("line = %q, want %q", got, "hello world")
	}
}

func TestSingleColumnReadingOrder(t *testing.T) {
	// Single-column page: lines must come out top-to-bottom, left-to-right.
	frags := []fragment{
		frag(72, 600, 100, "third"),
		frag(72, 700, 100, "first"),
		frag(72, 650, 100, "second"),
	}

	lines := orderForReading(assembleLines(frags), defaultPageWidth)
	got := renderLines(lines)
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTwoColumnReadingOrder(t *testing.T) {
	// Four lines clearly left of the midpoint, four clearly right: two-column
	// layout. All left-column text must precede all right-column text, each
	// side internally top-to-bottom.
	var frags []fragment
	for i := 0; i < 4; i++ {
		y := 700 - float64(i)*20
		frags = append(frags, frag(60, y, 100, "L"))
		frags = append(frags, frag(340, y, 100, "R"))
	}

	lines := orderForReading(assembleLines(frags), defaultPageWidth)
	got := renderLines(lines)
	if len(got) != 8 {
		t.Fatalf("got %d lines, want 8", len(got))
	}

	lastLeft, firstRight := -1, len(got)
	for i, s := range got {
		if s == "L" && i > lastLeft {
			lastLeft = i
		}
		if s == "R" && i < firstRight {
			firstRight = i
		}
	}
	if lastLeft >= firstRight {
		t.Errorf("left column text does not all precede right column: %v", got)
	}
}

func TestFewSideLinesStaysSingleColumn(t *testing.T) {
	// Three lines per side is below the two-column threshold; (top, left)
	// order interleaves the sides.
	var frags []fragment
	for i := 0; i < 3; i++ {
		y := 700 - float64(i)*20
		frags = append(frags, frag(60, y, 100, "L"))
		frags = append(frags, frag(340, y, 100, "R"))
	}

	lines := orderForReading(assembleLines(frags), defaultPageWidth)
	got := renderLines(lines)
	want := []string{"L", "R", "L", "R", "L", "R"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("interleaved order mismatch at %d: got %v", i, got)
		}
	}
}

func TestFullWidthLinesReadBeforeColumns(t *testing.T) {
	var frags []fragment
	// A full-width title line spanning the midpoint.
	frags = append(frags, frag(100, 750, 400, "Title"))
	for i := 0; i < 4; i++ {
		y := 700 - float64(i)*20
		frags = append(frags, frag(60, y, 100, "L"))
		frags = append(frags, frag(340, y, 100, "R"))
	}

	lines := orderForReading(assembleLines(frags), defaultPageWidth)
	got := renderLines(lines)
	if got[0] != "Title" {
		t.Errorf("first line = %q, want the full-width title", got[0])
	}
}

func TestNeedsSpace(t *testing.T) {
	tests := []struct {
		name string
		prev fragment
		cur  fragment
		want bool
	}{
		{"wide gap", frag(72, 700, 30, "Deep"), frag(110, 700, 50, "learning"), true},
		{"touching", frag(72, 700, 30, "Le"), frag(102.5, 700, 30, "arning"), false},
		{"prev has trailing space", frag(72, 700, 30, "Deep "), frag(110, 700, 50, "learning"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsSpace(tt.prev, tt.cur); got != tt.want {
				t.Errorf("needsSpace = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractMissingFileReportsBothStrategies(t *testing.T) {
	_, err := Extract("does-not-exist.pdf")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	msg := err.Error()
	if !strings.Contains(msg, "positioned") || !strings.Contains(msg, "plain") {
		t.Errorf("composite error should name both strategies, got %q", msg)
	}
}
