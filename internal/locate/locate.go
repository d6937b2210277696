// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package locate finds the bibliography section within a paper's extracted
// plain text. Extracted PDF text carries no structural markup, so location
// is heading pattern matching plus heuristic scoring, with a pattern-density
// fallback for papers whose bibliography has no recognizable heading.
package locate

import (
	"regexp"
	"strings"

	"github.com/pdiddy/refextract/pkg/types"
)

// headingPatterns recognizes bibliography section headings at start of line,
// optionally numbered ("7. References") and optionally ending in a period.
// Order matters only for tie-breaking: the first pattern whose match reaches
// the best score wins.
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?[ \t]+)?References?\.?[ \t]*$`),
	regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?[ \t]+)?Bibliography\.?[ \t]*$`),
	regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?[ \t]+)?Bibliographical[ \t]+References?\.?[ \t]*$`),
	regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?[ \t]+)?Bibliographic[ \t]+References?\.?[ \t]*$`),
	regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?[ \t]+)?References?[ \t]+and[ \t]+Notes?\.?[ \t]*$`),
	regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?[ \t]+)?Literature[ \t]+Cited\.?[ \t]*$`),
	regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?[ \t]+)?Works?[ \t]+Cited\.?[ \t]*$`),
	regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?[ \t]+)?Citations?\.?[ \t]*$`),
	regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?[ \t]+)?References?[ \t]+Cited\.?[ \t]*$`),
}

// bareHeadingRe matches a line that is nothing but the heading word with an
// optional numeral prefix.
var bareHeadingRe = regexp.MustCompile(`(?i)^[ \t]*(?:\d+\.?[ \t]+)?(?:References?|Bibliography|Literature[ \t]+Cited|Works?[ \t]+Cited|Citations?)\.?[ \t]*$`)

// Citation-entry shapes used by the scoring and fallback passes.
var (
	bracketEntryRe  = regexp.MustCompile(`^\[\d+\]`)
	numberedEntryRe = regexp.MustCompile(`^\d+\.`)
	yearParenRe     = regexp.MustCompile(`\((?:19|20)\d{2}\)`)
	etAlRe          = regexp.MustCompile(`(?i)et al\.`)
)

// fallbackEntryPatterns are the stricter entry shapes the heuristic detector
// counts when no heading was found.
var fallbackEntryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\[\d+\][ \t]+`),
	regexp.MustCompile(`^\d+\.[ \t]+[A-Z]`),
	regexp.MustCompile(`^\[\d+\][A-Z]`),
}

// endSectionPatterns match section headers that commonly follow a
// bibliography. The first independent line matching one of these truncates
// the section.
var endSectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^[A-Z][ \t]+Appendi(x|ces)[ \t]*$`),
	regexp.MustCompile(`(?i)^Appendi(x|ces)[ \t]+[A-Z][ \t]*[:.]?`),
	regexp.MustCompile(`(?i)^Appendi(x|ces)[ \t]*$`),
	regexp.MustCompile(`(?i)^[A-Z][ \t]*\.[ \t]*Appendi(x|ces)`),
	regexp.MustCompile(`^[A-Z]\.[0-9]+[ \t]+`),
	regexp.MustCompile(`(?i)^Supplementary[ \t]+(Materials?|Information)`),
	regexp.MustCompile(`(?i)^Supporting[ \t]+Information`),
	regexp.MustCompile(`(?i)^Acknowledgeme?nts?[ \t]*$`),
	regexp.MustCompile(`(?i)^Author[ \t]+(Information|Contributions?)`),
	regexp.MustCompile(`(?i)^Authors?'?[ \t]+Contributions?`),
	regexp.MustCompile(`(?i)^Competing[ \t]+Interests?`),
	regexp.MustCompile(`(?i)^Conflict[ \t]+of[ \t]+Interests?`),
	regexp.MustCompile(`(?i)^Data[ \t]+Availability`),
	regexp.MustCompile(`(?i)^Code[ \t]+Availability`),
}

// Locator finds reference sections using the thresholds in its config.
// The zero value is not usable; construct with New.
type Locator struct {
	cfg types.LocatorConfig
}

// New returns a Locator. Zero-valued thresholds in cfg are replaced with
// the defaults.
func New(cfg types.LocatorConfig) *Locator {
	def := types.DefaultLocatorConfig()
	if cfg.AcceptScore == 0 {
		cfg.AcceptScore = def.AcceptScore
	}
	if cfg.MinSectionChars == 0 {
		cfg.MinSectionChars = def.MinSectionChars
	}
	if cfg.FlagSectionChars == 0 {
		cfg.FlagSectionChars = def.FlagSectionChars
	}
	if cfg.FallbackTailFraction == 0 {
		cfg.FallbackTailFraction = def.FallbackTailFraction
	}
	if cfg.FallbackMinMatches == 0 {
		cfg.FallbackMinMatches = def.FallbackMinMatches
	}
	if cfg.FallbackClusterMatches == 0 {
		cfg.FallbackClusterMatches = def.FallbackClusterMatches
	}
	if cfg.FallbackClusterSpan == 0 {
		cfg.FallbackClusterSpan = def.FallbackClusterSpan
	}
	return &Locator{cfg: cfg}
}

// Locate scans text for the bibliography and returns its span. The second
// return value is false when neither the heading pass nor the heuristic
// fallback found a section; that is a normal outcome for some documents,
// not a defect. Locate is deterministic: the same text always yields the
// same span.
func (l *Locator) Locate(text string) (types.SectionSpan, bool) {
	bestScore := -1
	bestStart := -1
	for _, pat := range headingPatterns {
		for _, m := range pat.FindAllStringIndex(text, -1) {
			score := scoreHeading(text, m[0])
			if score > bestScore {
				bestScore = score
				bestStart = m[0]
			}
		}
	}

	if bestStart >= 0 && bestScore >= l.cfg.AcceptScore {
		if span, ok := l.spanFrom(text, bestStart, bestScore); ok {
			return span, true
		}
	}

	return l.heuristicDetect(text)
}

// spanFrom builds the section span beginning at start, applying the end
// boundary scan and the size sanity rules.
func (l *Locator) spanFrom(text string, start, score int) (types.SectionSpan, bool) {
	rest := text[start:]

	section := rest
	truncated := false
	if end := findSectionEnd(rest); end > 0 {
		section = rest[:end]
		truncated = true
	}

	// A suspiciously short truncation means the boundary heuristic misfired;
	// fall back to the full remainder.
	if len(section) < l.cfg.MinSectionChars {
		section = rest
		truncated = false
	}
	if len(section) < l.cfg.MinSectionChars {
		return types.SectionSpan{}, false
	}

	return types.SectionSpan{
		Text:      section,
		Start:     start,
		Score:     score,
		Truncated: truncated,
		Flagged:   len(section) > l.cfg.FlagSectionChars,
	}, true
}

// scoreHeading rates how likely the heading match at pos marks the real
// bibliography start. Scores range 0-10: position near the end of the
// document, a bare heading line, and citation-shaped lines following it all
// add confidence.
func scoreHeading(text string, pos int) int {
	score := 0

	ratio := float64(pos) / float64(len(text))
	switch {
	case ratio > 0.8:
		score += 3
	case ratio > 0.6:
		score += 2
	case ratio > 0.4:
		score += 1
	}

	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	lineEnd := strings.IndexByte(text[pos:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text)
	} else {
		lineEnd += pos
	}
	headingLine := strings.TrimSpace(text[lineStart:lineEnd])

	if bareHeadingRe.MatchString(headingLine) {
		score += 3
	} else if len(headingLine) < 30 {
		score += 2
	}

	next := strings.Split(text[min(lineEnd+1, len(text)):], "\n")
	if len(next) > 5 {
		next = next[:5]
	}
	entries := 0
	for _, ln := range next {
		ln = strings.TrimSpace(ln)
		if bracketEntryRe.MatchString(ln) || numberedEntryRe.MatchString(ln) ||
			yearParenRe.MatchString(ln) || etAlRe.MatchString(ln) {
			entries++
		}
	}
	if entries >= 2 {
		score += 2
	} else if entries >= 1 {
		score += 1
	}

	return score
}

// findSectionEnd looks for a post-bibliography section header within
// sectionText and returns the offset of the line that begins it, or -1 when
// the bibliography runs to the end. The first five lines are immune, since
// they include the heading itself. A line following a bare page-number line
// is checked with a looser length threshold because headers after a page
// break are often set wider.
func findSectionEnd(sectionText string) int {
	lines := strings.Split(sectionText, "\n")

	lastLineWasPageNumber := false
	pos := 0
	for i, ln := range lines {
		lineStart := pos
		pos += len(ln) + 1

		if i < 5 {
			continue
		}

		trimmed := strings.TrimSpace(ln)

		if isPageNumber(trimmed) {
			lastLineWasPageNumber = true
			continue
		}

		limit := 50
		if lastLineWasPageNumber {
			limit = 80
		}

		if len(trimmed) < limit {
			for _, pat := range endSectionPatterns {
				if pat.MatchString(trimmed) {
					return lineStart
				}
			}
		}

		if trimmed != "" {
			lastLineWasPageNumber = false
		}
	}
	return -1
}

// isPageNumber reports whether a trimmed line is a bare page number.
func isPageNumber(s string) bool {
	if s == "" || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// heuristicDetect searches the document tail for a dense run of
// citation-shaped lines when no heading was found. It accepts with
// FallbackMinMatches matches anywhere in the tail, or with
// FallbackClusterMatches matches packed within FallbackClusterSpan lines.
func (l *Locator) heuristicDetect(text string) (types.SectionSpan, bool) {
	searchStart := int(float64(len(text)) * (1 - l.cfg.FallbackTailFraction))
	// Snap to a line boundary so offsets stay line-aligned.
	if nl := strings.IndexByte(text[searchStart:], '\n'); nl >= 0 {
		searchStart += nl + 1
	}
	tail := text[searchStart:]
	lines := strings.Split(tail, "\n")

	var matches []int
	for i, ln := range lines {
		trimmed := strings.TrimSpace(ln)
		if len(trimmed) < 10 {
			continue
		}
		for _, pat := range fallbackEntryPatterns {
			if pat.MatchString(trimmed) {
				matches = append(matches, i)
				break
			}
		}
	}

	if len(matches) < l.cfg.FallbackClusterMatches {
		return types.SectionSpan{}, false
	}

	accepted := len(matches) >= l.cfg.FallbackMinMatches
	if !accepted {
		// 3-4 matches count only when tightly clustered.
		span := matches[len(matches)-1] - matches[0]
		accepted = span <= l.cfg.FallbackClusterSpan
	}
	if !accepted {
		return types.SectionSpan{}, false
	}

	startLine := matches[0]
	// Back over immediately preceding near-empty lines (separators).
	for startLine > 0 && len(strings.TrimSpace(lines[startLine-1])) < 5 {
		startLine--
	}

	offset := 0
	for i := 0; i < startLine; i++ {
		offset += len(lines[i]) + 1
	}

	span, ok := l.spanFrom(text, searchStart+offset, 0)
	if !ok {
		return types.SectionSpan{}, false
	}
	return span, true
}
