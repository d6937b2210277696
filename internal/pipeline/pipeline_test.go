// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/refextract/internal/structure"
	"github.com/pdiddy/refextract/pkg/types"
)

type stubExtractor struct {
	text   string
	err    error
	panics bool
}

func (s stubExtractor) Extract(string) (string, error) {
	if s.panics {
		panic("malformed xref table")
	}
	return s.text, s.err
}

type stubLocator struct {
	span types.SectionSpan
	ok   bool
}

func (s stubLocator) Locate(string) (types.SectionSpan, bool) {
	return s.span, s.ok
}

type stubStructurer struct {
	res structure.Result
}

func (s stubStructurer) Structure(context.Context, string) structure.Result {
	return s.res
}

// seedPDF places a non-empty PDF where the downloader will look, so tests
// exercise the reuse path without a network.
func seedPDF(t *testing.T, d *Downloader, paperID string) string {
	t.Helper()
	path := d.PDFPath(paperID)
	if err := os.WriteFile(path, []byte("%PDF seed"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestPipeline(t *testing.T) (*Pipeline, *[]Step) {
	t.Helper()
	var steps []Step
	p := &Pipeline{
		Downloader: NewDownloader(types.DownloadConfig{Dir: t.TempDir(), RetryBaseDelay: time.Millisecond}),
		Extractor:  stubExtractor{text: "body text\nReferences\n[1] Entry."},
		Locator:    stubLocator{span: types.SectionSpan{Text: "References\n[1] Entry.", Score: 8}, ok: true},
		Structurer: stubStructurer{res: structure.Result{
			OK:      true,
			Records: []types.ReferenceRecord{{Ordinal: 1, Title: "Entry"}},
		}},
		Progress: func(_ string, s Step, _ string) { steps = append(steps, s) },
	}
	return p, &steps
}

func containsStep(steps []Step, want Step) bool {
	for _, s := range steps {
		if s == want {
			return true
		}
	}
	return false
}

func TestProcessPaperFullMode(t *testing.T) {
	p, steps := newTestPipeline(t)
	seedPDF(t, p.Downloader, "2301.07041")

	out := p.ProcessPaper(context.Background(), types.Paper{ID: "2301.07041"}, ModeFull)
	if out.Failed() {
		t.Fatalf("pipeline failed: %s (%s)", out.Err, out.Kind)
	}
	if out.Step != StepLLMCompleted {
		t.Errorf("final step = %s", out.Step)
	}
	if len(out.Records) != 1 || out.Records[0].Title != "Entry" {
		t.Errorf("records = %+v", out.Records)
	}
	if out.Section == nil || out.Section.Score != 8 {
		t.Errorf("section = %+v", out.Section)
	}
	if !out.PDFReused {
		t.Error("seeded PDF not reused")
	}

	want := []Step{
		StepDownloading, StepDownloaded,
		StepExtracting, StepExtracted,
		StepFindingReferences, StepReferencesFound,
		StepLLMProcessing, StepLLMCompleted,
	}
	if !reflect.DeepEqual(*steps, want) {
		t.Errorf("steps = %v, want %v", *steps, want)
	}
}

func TestProcessPaperExtractMode(t *testing.T) {
	p, steps := newTestPipeline(t)
	seedPDF(t, p.Downloader, "2301.07041")

	out := p.ProcessPaper(context.Background(), types.Paper{ID: "2301.07041"}, ModeExtract)
	if out.Failed() {
		t.Fatalf("pipeline failed: %s", out.Err)
	}
	if out.Step != StepReferencesFound {
		t.Errorf("final step = %s, want %s", out.Step, StepReferencesFound)
	}
	if out.Section == nil || out.Section.Text == "" {
		t.Error("extract mode must return the located section")
	}
	if out.Records != nil {
		t.Error("extract mode must not produce records")
	}
	if !containsStep(*steps, StepFindingReferences) || !containsStep(*steps, StepReferencesFound) {
		t.Errorf("steps = %v, want the locator transitions", *steps)
	}
	for _, s := range *steps {
		if s == StepLLMProcessing || s == StepLLMCompleted {
			t.Errorf("extract mode reached %s", s)
		}
	}
}

func TestProcessPaperDownloadError(t *testing.T) {
	p, steps := newTestPipeline(t)
	// No seeded PDF and no URL: the downloader fails immediately.
	out := p.ProcessPaper(context.Background(), types.Paper{ID: "missing"}, ModeFull)
	if !out.Failed() || out.Kind != ErrDownload {
		t.Fatalf("outcome = %+v, want %s", out, ErrDownload)
	}
	if out.Step != StepFailed || out.FailedAt != StepDownloading {
		t.Errorf("step = %s, failedAt = %s", out.Step, out.FailedAt)
	}
	if !containsStep(*steps, Step(ErrDownload)) {
		t.Errorf("steps = %v, want a %s transition", *steps, ErrDownload)
	}
}

func TestProcessPaperExtractionError(t *testing.T) {
	p, _ := newTestPipeline(t)
	seedPDF(t, p.Downloader, "p")
	p.Extractor = stubExtractor{err: fmt.Errorf("pdf text extraction failed")}

	out := p.ProcessPaper(context.Background(), types.Paper{ID: "p"}, ModeFull)
	if out.Kind != ErrExtraction {
		t.Fatalf("kind = %s, want %s", out.Kind, ErrExtraction)
	}
	if out.FailedAt != StepExtracting {
		t.Errorf("failedAt = %s", out.FailedAt)
	}
}

func TestProcessPaperReferenceNotFound(t *testing.T) {
	p, steps := newTestPipeline(t)
	seedPDF(t, p.Downloader, "p")
	p.Locator = stubLocator{ok: false}

	out := p.ProcessPaper(context.Background(), types.Paper{ID: "p"}, ModeFull)
	if out.Kind != ErrNotFound {
		t.Fatalf("kind = %s, want %s", out.Kind, ErrNotFound)
	}
	if !strings.Contains(out.Err, "no reference section") {
		t.Errorf("err = %q", out.Err)
	}
	// A locator miss must surface through the progress side channel, after
	// the search was announced.
	if !containsStep(*steps, StepFindingReferences) {
		t.Errorf("steps = %v, want %s", *steps, StepFindingReferences)
	}
	if !containsStep(*steps, Step(ErrNotFound)) {
		t.Errorf("steps = %v, want a %s transition", *steps, ErrNotFound)
	}
}

func TestProcessPaperLLMError(t *testing.T) {
	p, steps := newTestPipeline(t)
	seedPDF(t, p.Downloader, "p")
	p.Structurer = stubStructurer{res: structure.Result{
		Err:         "model response contained no parseable reference array",
		RawResponse: "I'm sorry, I cannot help with that.",
	}}

	out := p.ProcessPaper(context.Background(), types.Paper{ID: "p"}, ModeFull)
	if out.Kind != ErrLLM {
		t.Fatalf("kind = %s, want %s", out.Kind, ErrLLM)
	}
	if out.RawResponse == "" {
		t.Error("raw model response must be retained on structuring failure")
	}
	if out.Section == nil {
		t.Error("located section must be retained even when structuring fails")
	}
	if !containsStep(*steps, Step(ErrLLM)) {
		t.Errorf("steps = %v, want a %s transition", *steps, ErrLLM)
	}
}

func TestProcessPaperPanicBecomesUnexpectedError(t *testing.T) {
	p, _ := newTestPipeline(t)
	seedPDF(t, p.Downloader, "p")
	p.Extractor = stubExtractor{panics: true}

	out := p.ProcessPaper(context.Background(), types.Paper{ID: "p"}, ModeFull)
	if out.Kind != ErrUnexpected {
		t.Fatalf("kind = %s, want %s", out.Kind, ErrUnexpected)
	}
	if !strings.Contains(out.Err, "malformed xref table") {
		t.Errorf("err = %q, want the panic value", out.Err)
	}
	if out.FailedAt != StepExtracting {
		t.Errorf("failedAt = %s", out.FailedAt)
	}
}

func TestProcessPaperRemovesPDFByDefault(t *testing.T) {
	p, _ := newTestPipeline(t)

	// Cleanup applies even to PDFs that were already on disk.
	path := seedPDF(t, p.Downloader, "done")
	out := p.ProcessPaper(context.Background(), types.Paper{ID: "done"}, ModeFull)
	if out.Failed() {
		t.Fatalf("pipeline failed: %s", out.Err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("PDF survived a completed run")
	}
}

func TestProcessPaperRemovesPDFOnFailure(t *testing.T) {
	p, _ := newTestPipeline(t)
	p.Locator = stubLocator{ok: false}

	path := seedPDF(t, p.Downloader, "bad")
	out := p.ProcessPaper(context.Background(), types.Paper{ID: "bad"}, ModeFull)
	if !out.Failed() {
		t.Fatal("expected a locator failure")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("PDF survived a failed run")
	}
}

func TestProcessPaperKeepPDFs(t *testing.T) {
	p, _ := newTestPipeline(t)
	p.KeepPDFs = true

	path := seedPDF(t, p.Downloader, "keep")
	out := p.ProcessPaper(context.Background(), types.Paper{ID: "keep"}, ModeFull)
	if out.Failed() {
		t.Fatalf("pipeline failed: %s", out.Err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("KeepPDFs must leave the file in place")
	}
}

func TestStructureSection(t *testing.T) {
	p, steps := newTestPipeline(t)

	out := p.StructureSection(context.Background(), "p", "References\n[1] Entry.")
	if out.Failed() {
		t.Fatalf("StructureSection failed: %s", out.Err)
	}
	if out.Step != StepLLMCompleted || len(out.Records) != 1 {
		t.Errorf("outcome = %+v", out)
	}
	want := []Step{StepLLMProcessing, StepLLMCompleted}
	if !reflect.DeepEqual(*steps, want) {
		t.Errorf("steps = %v, want %v", *steps, want)
	}

	p.Structurer = stubStructurer{res: structure.Result{Err: "boom", RawResponse: "raw"}}
	out = p.StructureSection(context.Background(), "p", "text")
	if out.Kind != ErrLLM || out.RawResponse != "raw" {
		t.Errorf("failure outcome = %+v", out)
	}
}
