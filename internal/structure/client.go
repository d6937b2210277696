// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package structure converts raw reference-section text into structured
// bibliography records by way of a language-model completion call whose
// output is repaired and parsed tolerantly.
package structure

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/refextract/pkg/types"
)

// DefaultMaxChars bounds the section text sent to the model, limiting
// request size and completion latency.
const DefaultMaxChars = 50000

const (
	defaultMaxTokens   = 8000
	defaultTemperature = 0.1
)

// Result is the outcome of one structuring call. Parsing failure is an
// expected, recoverable outcome; it is reported through OK and Err rather
// than raised, and RawResponse is retained for diagnostics either way.
type Result struct {
	OK          bool
	Records     []types.ReferenceRecord
	Err         string
	RawResponse string
}

// Structurer sends reference-section text to a ChatBackend and parses the
// response. Construct with New.
type Structurer struct {
	backend     ChatBackend
	maxChars    int
	maxTokens   int
	temperature float64
}

// New builds a Structurer over the given backend. Zero-valued cfg fields
// fall back to the package defaults.
func New(backend ChatBackend, cfg types.LLMConfig) *Structurer {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &Structurer{
		backend:     backend,
		maxChars:    maxChars,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Structure sends sectionText (truncated to the configured limit) to the
// model and parses the response into reference records. The model is never
// re-invoked on parse failure; a fresh pipeline run is required.
func (s *Structurer) Structure(ctx context.Context, sectionText string) Result {
	if len(sectionText) > s.maxChars {
		sectionText = sectionText[:s.maxChars]
	}

	prompt, err := renderPrompt(sectionText)
	if err != nil {
		return Result{Err: fmt.Sprintf("rendering prompt: %v", err)}
	}

	raw, err := s.backend.ChatComplete(ctx, ChatRequest{
		System:      systemInstruction,
		User:        prompt,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return Result{Err: fmt.Sprintf("completion call failed: %v", err)}
	}

	parsed, ok := decodeResponse(raw)
	if !ok {
		return Result{
			Err:         "model response contained no parseable reference array",
			RawResponse: raw,
		}
	}

	records := make([]types.ReferenceRecord, 0, len(parsed))
	for i, r := range parsed {
		records = append(records, r.toRecord(i+1))
	}

	return Result{OK: true, Records: records, RawResponse: raw}
}

// rawReference mirrors the model's schema with tolerant field types: the
// generator intermittently emits numbers as strings, strings as null, and
// author lists as null.
type rawReference struct {
	ReferenceNumber flexInt    `json:"reference_number"`
	Title           flexString `json:"title"`
	Authors         []string   `json:"authors"`
	Year            flexInt    `json:"year"`
	Venue           flexString `json:"venue"`
	VenueType       flexString `json:"venue_type"`
	Volume          flexString `json:"volume"`
	Issue           flexString `json:"issue"`
	Pages           flexString `json:"pages"`
	DOI             flexString `json:"doi"`
	ArxivID         flexString `json:"arxiv_id"`
	URL             flexString `json:"url"`
	RawText         flexString `json:"raw_text"`
}

// toRecord converts a raw reference into the domain record, supplying
// fallbackOrdinal (1-based position in the response) when the model omitted
// or zeroed the entry number.
func (r rawReference) toRecord(fallbackOrdinal int) types.ReferenceRecord {
	ordinal := int(r.ReferenceNumber)
	if ordinal <= 0 {
		ordinal = fallbackOrdinal
	}
	return types.ReferenceRecord{
		Ordinal:   ordinal,
		Title:     string(r.Title),
		Authors:   r.Authors,
		Year:      int(r.Year),
		Venue:     string(r.Venue),
		VenueType: types.NormalizeVenueType(string(r.VenueType)),
		Volume:    string(r.Volume),
		Issue:     string(r.Issue),
		Pages:     string(r.Pages),
		DOI:       string(r.DOI),
		ArxivID:   string(r.ArxivID),
		URL:       string(r.URL),
		RawText:   string(r.RawText),
	}
}

// flexInt unmarshals from a JSON number, a numeric string, or null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Tolerate junk in a single field rather than failing the record.
		*f = 0
		return nil
	}
	*f = flexInt(int(n))
	return nil
}

// flexString unmarshals from a JSON string, a number, or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*f = flexString(str)
		return nil
	}
	*f = flexString(s)
	return nil
}
