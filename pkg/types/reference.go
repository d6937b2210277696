// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the domain types and per-stage configuration
// shared across the reference-extraction pipeline.
package types

import "time"

// VenueType classifies where a cited work was published.
type VenueType string

const (
	VenueJournal    VenueType = "journal"
	VenueConference VenueType = "conference"
	VenueArxiv      VenueType = "arxiv"
	VenueBook       VenueType = "book"
	VenueThesis     VenueType = "thesis"
	VenueTechReport VenueType = "tech_report"
	VenueOther      VenueType = "other"
)

// NormalizeVenueType maps a free-form venue type string to one of the known
// VenueType values, falling back to VenueOther.
func NormalizeVenueType(s string) VenueType {
	switch VenueType(s) {
	case VenueJournal, VenueConference, VenueArxiv, VenueBook, VenueThesis, VenueTechReport:
		return VenueType(s)
	default:
		return VenueOther
	}
}

// ReferenceRecord is one structured bibliography entry extracted from a
// paper's reference section. Records are produced in bulk per pipeline run;
// the store replaces all prior records for a paper atomically on each
// successful re-run, so individual records are never mutated.
type ReferenceRecord struct {
	// Ordinal is the 1-based position of the entry within the paper's
	// bibliography, unique per paper.
	Ordinal int `json:"reference_number" yaml:"reference_number"`

	// Title is the cited work's title.
	Title string `json:"title" yaml:"title"`

	// Authors lists author names in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Year is the publication year, 0 when unknown.
	Year int `json:"year" yaml:"year"`

	// Venue is the journal or conference name.
	Venue string `json:"venue" yaml:"venue"`

	// VenueType classifies the venue.
	VenueType VenueType `json:"venue_type" yaml:"venue_type"`

	Volume  string `json:"volume,omitempty" yaml:"volume,omitempty"`
	Issue   string `json:"issue,omitempty" yaml:"issue,omitempty"`
	Pages   string `json:"pages,omitempty" yaml:"pages,omitempty"`
	DOI     string `json:"doi,omitempty" yaml:"doi,omitempty"`
	ArxivID string `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`

	// RawText is the original bibliography entry the record was derived from.
	RawText string `json:"raw_text" yaml:"raw_text"`
}

// SectionSpan is a contiguous substring of a document's extracted text
// identified as the bibliography. It is ephemeral: produced by the locator,
// consumed by the structuring client, persisted only as raw text.
type SectionSpan struct {
	// Text is the reference-section text.
	Text string

	// Start is the byte offset of the section within the full document text.
	Start int

	// Score is the locator's reliability score for the accepted heading
	// match (0-10), or 0 when the heuristic fallback found the section.
	Score int

	// Truncated reports whether an end-of-bibliography boundary was found
	// and the section cut there.
	Truncated bool

	// Flagged reports that the span exceeds the size the structuring client
	// will send, so it will be truncated downstream.
	Flagged bool
}

// Paper is one registered arXiv paper awaiting or holding extraction results.
type Paper struct {
	// ID is the arXiv identifier (e.g. "2301.07041").
	ID string `json:"id" yaml:"id"`

	// PDFURL is the URL the PDF is downloaded from.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	// Title is the paper title, when metadata has been fetched.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Published is the preprint date, when known.
	Published time.Time `json:"published,omitempty" yaml:"published,omitempty"`

	// Abstract is the paper abstract, when metadata has been fetched.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`
}
