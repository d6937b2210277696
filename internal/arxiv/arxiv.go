// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package arxiv normalizes arXiv identifiers and fetches paper metadata
// from the arXiv API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/refextract/pkg/types"
)

// Base URLs for resolution. Declared as vars so tests can substitute
// httptest servers.
var (
	pdfBase = "https://arxiv.org/pdf/"
	apiBase = "https://export.arxiv.org/api/query"
)

// idPattern matches modern arXiv IDs with optional prefix and version:
// "2301.07041", "arXiv:2301.07041", "2301.07041v2".
var idPattern = regexp.MustCompile(`^(?:arXiv:)?(\d{4}\.\d{4,5}(?:v\d+)?)$`)

// oldIDPattern matches pre-2007 IDs like "hep-th/9901001".
var oldIDPattern = regexp.MustCompile(`^(?:arXiv:)?([a-z-]+(?:\.[A-Z]{2})?/\d{7}(?:v\d+)?)$`)

// abstractURLRe pulls the ID out of an arxiv.org abstract or PDF URL.
var abstractURLRe = regexp.MustCompile(`^https?://arxiv\.org/(?:abs|pdf)/(.+?)(?:\.pdf)?$`)

// NormalizeID extracts a canonical arXiv ID from raw user input, which may
// be a bare ID, a prefixed ID, or an arxiv.org URL.
func NormalizeID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	if m := abstractURLRe.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if m := idPattern.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if m := oldIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("unrecognized arXiv identifier: %q", raw)
}

// PDFURL returns the arxiv.org download URL for a normalized ID.
func PDFURL(id string) string {
	return pdfBase + id
}

// Atom feed XML structures.
type feed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	Title     string   `xml:"title"`
	Summary   string   `xml:"summary"`
	Published string   `xml:"published"`
	Authors   []author `xml:"author"`
}

type author struct {
	Name string `xml:"name"`
}

// FetchMetadata retrieves title, authors, abstract, and publication date
// from the arXiv API and fills them into paper.
func FetchMetadata(ctx context.Context, client *http.Client, id string, paper *types.Paper) error {
	apiURL := fmt.Sprintf("%s?id_list=%s", apiBase, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var f feed
	if err := xml.NewDecoder(resp.Body).Decode(&f); err != nil {
		return fmt.Errorf("parsing arXiv response: %w", err)
	}
	if len(f.Entries) == 0 {
		return fmt.Errorf("no entries found for arXiv ID %s", id)
	}

	e := f.Entries[0]
	paper.Title = strings.Join(strings.Fields(e.Title), " ")
	paper.Abstract = strings.TrimSpace(e.Summary)
	for _, a := range e.Authors {
		paper.Authors = append(paper.Authors, strings.TrimSpace(a.Name))
	}
	if t, parseErr := time.Parse(time.RFC3339, e.Published); parseErr == nil {
		paper.Published = t
	}
	return nil
}
