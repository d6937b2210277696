// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates reference extraction for registered papers:
// download the PDF, extract its text, locate the bibliography, and structure
// it into records. Each stage failure is classified so batch reporting can
// distinguish network trouble from papers that genuinely lack a reference
// section.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/refextract/internal/structure"
	"github.com/pdiddy/refextract/pkg/types"
)

// Step names the pipeline stage a paper is in. Steps are persisted to the
// extract log, so the values are part of the stored format.
type Step string

const (
	StepPending           Step = "pending"
	StepDownloading       Step = "downloading"
	StepDownloaded        Step = "downloaded"
	StepExtracting        Step = "extracting"
	StepExtracted         Step = "extracted"
	StepFindingReferences Step = "finding_references"
	StepReferencesFound   Step = "references_found"
	StepLLMProcessing     Step = "llm_processing"
	StepLLMCompleted      Step = "llm_completed"
	StepFailed            Step = "failed"
)

// ErrorKind classifies a pipeline failure. Values are persisted to the
// extract log and aggregated in batch stats.
type ErrorKind string

const (
	ErrDownload   ErrorKind = "download_error"
	ErrExtraction ErrorKind = "extraction_error"
	ErrNotFound   ErrorKind = "reference_not_found"
	ErrLLM        ErrorKind = "llm_error"
	ErrUnexpected ErrorKind = "unexpected_error"
)

// Mode selects how much of the pipeline runs for a paper.
type Mode string

const (
	// ModeFull runs download, extraction, location, and structuring.
	ModeFull Mode = "full"

	// ModeExtract stops after the bibliography is located; the section text
	// is persisted for later structuring.
	ModeExtract Mode = "extract"
)

// ProgressFunc observes step transitions while a paper is processed. It
// fires on every transition, failure states included: a failing stage emits
// a transition named after its ErrorKind before the pipeline returns.
// detail is a human-readable note for that transition (URL, char counts,
// error text); it may be empty.
type ProgressFunc func(paperID string, step Step, detail string)

// TextExtractor produces plain text from a PDF file.
type TextExtractor interface {
	Extract(pdfPath string) (string, error)
}

// SectionLocator finds the bibliography span within extracted text.
type SectionLocator interface {
	Locate(text string) (types.SectionSpan, bool)
}

// SectionStructurer converts section text into reference records.
type SectionStructurer interface {
	Structure(ctx context.Context, sectionText string) structure.Result
}

// Outcome is the result of running the pipeline for one paper. A zero Kind
// means success; otherwise Kind and Err describe the failing stage.
type Outcome struct {
	PaperID string

	// Step is the last step reached (StepLLMCompleted or
	// StepReferencesFound on success, StepFailed otherwise).
	Step Step

	// FailedAt is the step that was in progress when the failure occurred.
	FailedAt Step

	Kind ErrorKind
	Err  string

	// Section is the located bibliography span, set whenever location
	// succeeded regardless of later stages.
	Section *types.SectionSpan

	// Records holds the structured references on full-pipeline success.
	Records []types.ReferenceRecord

	// RawResponse is the model output retained when structuring produced
	// nothing parseable, for offline diagnosis.
	RawResponse string

	// PDFReused reports that an already-downloaded PDF was used.
	PDFReused bool
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Kind != ""
}

// Pipeline wires the stages together. All stage dependencies are interfaces
// so tests can substitute any of them.
type Pipeline struct {
	Downloader *Downloader
	Extractor  TextExtractor
	Locator    SectionLocator
	Structurer SectionStructurer

	// KeepPDFs disables the per-run PDF cleanup, for debugging. By default
	// the local PDF is removed on every exit path, successful or not, so
	// batch runs do not accumulate disk usage.
	KeepPDFs bool

	// Progress, when set, observes step transitions.
	Progress ProgressFunc
}

func (p *Pipeline) step(paperID string, s Step, detail string) {
	if p.Progress != nil {
		p.Progress(paperID, s, detail)
	}
}

// ProcessPaper runs the pipeline for one paper. It never panics: stage
// panics (the PDF parser is panic-prone on malformed files reaching it
// through untested paths) are converted to unexpected_error outcomes.
func (p *Pipeline) ProcessPaper(ctx context.Context, paper types.Paper, mode Mode) (out Outcome) {
	out.PaperID = paper.ID
	current := StepPending

	defer func() {
		if r := recover(); r != nil {
			out.Step = StepFailed
			out.FailedAt = current
			out.Kind = ErrUnexpected
			out.Err = fmt.Sprintf("panic: %v", r)
			p.step(paper.ID, Step(ErrUnexpected), out.Err)
		}
	}()

	fail := func(kind ErrorKind, err error) Outcome {
		p.step(paper.ID, Step(kind), err.Error())
		out.Step = StepFailed
		out.FailedAt = current
		out.Kind = kind
		out.Err = err.Error()
		return out
	}

	current = StepDownloading
	p.step(paper.ID, StepDownloading, paper.PDFURL)
	pdfPath, reused, err := p.Downloader.Fetch(ctx, paper)
	if err != nil {
		return fail(ErrDownload, err)
	}
	out.PDFReused = reused
	if !p.KeepPDFs {
		defer os.Remove(pdfPath)
	}
	downloadDetail := pdfPath
	if reused {
		downloadDetail = pdfPath + " (cached)"
	}
	p.step(paper.ID, StepDownloaded, downloadDetail)

	current = StepExtracting
	p.step(paper.ID, StepExtracting, "")
	text, err := p.Extractor.Extract(pdfPath)
	if err != nil {
		return fail(ErrExtraction, err)
	}
	p.step(paper.ID, StepExtracted, fmt.Sprintf("%d chars", len(text)))

	current = StepFindingReferences
	p.step(paper.ID, StepFindingReferences, "")
	section, ok := p.Locator.Locate(text)
	if !ok {
		return fail(ErrNotFound, fmt.Errorf("no reference section found in %s", paper.ID))
	}
	out.Section = &section
	p.step(paper.ID, StepReferencesFound, fmt.Sprintf("score %d, %d chars", section.Score, len(section.Text)))

	if mode == ModeExtract {
		out.Step = StepReferencesFound
		return out
	}

	current = StepLLMProcessing
	p.step(paper.ID, StepLLMProcessing, "")
	res := p.Structurer.Structure(ctx, section.Text)
	if !res.OK {
		out.RawResponse = res.RawResponse
		return fail(ErrLLM, fmt.Errorf("%s", res.Err))
	}

	out.Step = StepLLMCompleted
	out.Records = res.Records
	p.step(paper.ID, StepLLMCompleted, fmt.Sprintf("%d references", len(res.Records)))
	return out
}

// StructureSection runs only the structuring stage over previously
// harvested section text, for papers whose bibliography is already stored.
func (p *Pipeline) StructureSection(ctx context.Context, paperID, sectionText string) (out Outcome) {
	out.PaperID = paperID
	current := StepLLMProcessing

	defer func() {
		if r := recover(); r != nil {
			out.Step = StepFailed
			out.FailedAt = current
			out.Kind = ErrUnexpected
			out.Err = fmt.Sprintf("panic: %v", r)
			p.step(paperID, Step(ErrUnexpected), out.Err)
		}
	}()

	p.step(paperID, StepLLMProcessing, "")
	res := p.Structurer.Structure(ctx, sectionText)
	if !res.OK {
		p.step(paperID, Step(ErrLLM), res.Err)
		out.Step = StepFailed
		out.FailedAt = StepLLMProcessing
		out.Kind = ErrLLM
		out.Err = res.Err
		out.RawResponse = res.RawResponse
		return out
	}

	out.Step = StepLLMCompleted
	out.Records = res.Records
	p.step(paperID, StepLLMCompleted, fmt.Sprintf("%d references", len(res.Records)))
	return out
}
