// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/refextract/internal/structure"
	"github.com/pdiddy/refextract/pkg/types"
)

// countingStructurer records concurrent invocations.
type countingStructurer struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	res      structure.Result
}

func (c *countingStructurer) Structure(context.Context, string) structure.Result {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.peak {
		c.peak = c.inFlight
	}
	c.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	return c.res
}

func newBatchPipeline(t *testing.T, s SectionStructurer) *Pipeline {
	t.Helper()
	return &Pipeline{
		Downloader: NewDownloader(types.DownloadConfig{Dir: t.TempDir(), RetryBaseDelay: time.Millisecond}),
		Extractor:  stubExtractor{text: "text"},
		Locator:    stubLocator{span: types.SectionSpan{Text: "References\n[1] E."}, ok: true},
		Structurer: s,
	}
}

func TestRunnerProcessesAllPapers(t *testing.T) {
	cs := &countingStructurer{res: structure.Result{OK: true, Records: []types.ReferenceRecord{{Ordinal: 1}}}}
	p := newBatchPipeline(t, cs)

	papers := make([]types.Paper, 8)
	for i := range papers {
		papers[i] = types.Paper{ID: fmt.Sprintf("paper-%d", i)}
		seedPDF(t, p.Downloader, papers[i].ID)
	}

	var mu sync.Mutex
	seen := map[string]bool{}
	r := &Runner{
		Pipeline: p,
		Workers:  3,
		Output:   &bytes.Buffer{},
		OnOutcome: func(out Outcome) error {
			mu.Lock()
			defer mu.Unlock()
			seen[out.PaperID] = true
			return nil
		},
	}

	snap := r.Run(context.Background(), papers, ModeFull)
	if snap.Succeeded != 8 || snap.HasFailures() {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(seen) != 8 {
		t.Errorf("OnOutcome saw %d papers, want 8", len(seen))
	}
	if cs.peak > 3 {
		t.Errorf("peak concurrency %d exceeds worker count 3", cs.peak)
	}
}

func TestRunnerAggregatesFailureKinds(t *testing.T) {
	p := newBatchPipeline(t, stubStructurer{res: structure.Result{OK: true}})

	papers := []types.Paper{
		{ID: "ok-1"},
		{ID: "no-url"}, // not seeded, no URL: download_error
		{ID: "ok-2"},
	}
	seedPDF(t, p.Downloader, "ok-1")
	seedPDF(t, p.Downloader, "ok-2")

	var buf bytes.Buffer
	r := &Runner{Pipeline: p, Workers: 1, Output: &buf}
	snap := r.Run(context.Background(), papers, ModeFull)

	if snap.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", snap.Succeeded)
	}
	if snap.Failures[ErrDownload] != 1 {
		t.Errorf("failures = %v", snap.Failures)
	}
	if !strings.Contains(buf.String(), "failed: no-url (download_error") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunnerWritesLLMDiagnostics(t *testing.T) {
	p := newBatchPipeline(t, stubStructurer{res: structure.Result{
		Err:         "model response contained no parseable reference array",
		RawResponse: "Sorry, here is prose instead of JSON.",
	}})
	seedPDF(t, p.Downloader, "2301.07041")

	diagDir := t.TempDir()
	r := &Runner{
		Pipeline:       p,
		Workers:        1,
		Output:         &bytes.Buffer{},
		DiagnosticsDir: diagDir,
		LLM:            types.LLMConfig{Provider: "openai", Model: "gpt-4o", MaxTokens: 8192, MaxChars: 50000},
	}
	snap := r.Run(context.Background(), []types.Paper{{ID: "2301.07041"}}, ModeFull)

	if snap.Failures[ErrLLM] != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	path := filepath.Join(diagDir, "2301.07041.llm-failure.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("diagnostics file: %v", err)
	}
	var diag llmDiagnostics
	if err := yaml.Unmarshal(data, &diag); err != nil {
		t.Fatalf("parsing diagnostics: %v", err)
	}
	if diag.PaperID != "2301.07041" {
		t.Errorf("paper_id = %q", diag.PaperID)
	}
	if diag.Provider != "openai" || diag.Model != "gpt-4o" || diag.MaxChars != 50000 {
		t.Errorf("request parameters = %+v", diag)
	}
	if diag.RawResponse != "Sorry, here is prose instead of JSON." {
		t.Errorf("raw_response = %q", diag.RawResponse)
	}
}

func TestRunnerTruncatesDiagnosticsResponse(t *testing.T) {
	p := newBatchPipeline(t, stubStructurer{res: structure.Result{
		Err:         "model response contained no parseable reference array",
		RawResponse: strings.Repeat("x", maxDiagnosticsResponse+500),
	}})
	seedPDF(t, p.Downloader, "big")

	diagDir := t.TempDir()
	r := &Runner{Pipeline: p, Workers: 1, Output: &bytes.Buffer{}, DiagnosticsDir: diagDir}
	r.Run(context.Background(), []types.Paper{{ID: "big"}}, ModeFull)

	data, err := os.ReadFile(filepath.Join(diagDir, "big.llm-failure.yaml"))
	if err != nil {
		t.Fatalf("diagnostics file: %v", err)
	}
	var diag llmDiagnostics
	if err := yaml.Unmarshal(data, &diag); err != nil {
		t.Fatalf("parsing diagnostics: %v", err)
	}
	if len(diag.RawResponse) > maxDiagnosticsResponse+len("... [truncated]") {
		t.Errorf("raw_response length = %d, want bounded", len(diag.RawResponse))
	}
	if !strings.HasSuffix(diag.RawResponse, "[truncated]") {
		t.Errorf("raw_response does not mark the truncation: %q", diag.RawResponse[len(diag.RawResponse)-30:])
	}
}

func TestRunnerHarvestOutput(t *testing.T) {
	p := newBatchPipeline(t, nil)
	seedPDF(t, p.Downloader, "h")

	var buf bytes.Buffer
	r := &Runner{Pipeline: p, Workers: 1, Output: &buf}
	snap := r.Run(context.Background(), []types.Paper{{ID: "h"}}, ModeExtract)
	if snap.Succeeded != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !strings.Contains(buf.String(), "harvested: h") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunnerCancelledContextSkipsRemaining(t *testing.T) {
	p := newBatchPipeline(t, stubStructurer{res: structure.Result{OK: true}})
	papers := make([]types.Paper, 5)
	for i := range papers {
		papers[i] = types.Paper{ID: fmt.Sprintf("p-%d", i)}
		seedPDF(t, p.Downloader, papers[i].ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Pipeline: p, Workers: 2, Output: &bytes.Buffer{}}
	snap := r.Run(ctx, papers, ModeFull)
	if snap.Succeeded != 0 {
		t.Errorf("succeeded = %d with cancelled context", snap.Succeeded)
	}
	if snap.Total() != 5 {
		t.Errorf("total = %d, want all papers accounted for", snap.Total())
	}
}

func TestRunnerRunSections(t *testing.T) {
	p := newBatchPipeline(t, stubStructurer{res: structure.Result{
		OK:      true,
		Records: []types.ReferenceRecord{{Ordinal: 1, Title: "T"}},
	}})

	items := []SectionItem{
		{PaperID: "a", Text: "References\n[1] A."},
		{PaperID: "b", Text: "References\n[1] B."},
	}
	var got []Outcome
	var mu sync.Mutex
	r := &Runner{
		Pipeline: p,
		Workers:  2,
		Output:   &bytes.Buffer{},
		OnOutcome: func(out Outcome) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, out)
			return nil
		},
	}

	snap := r.RunSections(context.Background(), items)
	if snap.Succeeded != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	for _, out := range got {
		if out.Step != StepLLMCompleted || len(out.Records) != 1 {
			t.Errorf("outcome = %+v", out)
		}
	}
}
