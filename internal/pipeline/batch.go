// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"
	"golang.org/x/time/rate"

	"github.com/pdiddy/refextract/pkg/types"
)

// SectionItem is previously harvested bibliography text queued for
// structuring.
type SectionItem struct {
	PaperID string
	Text    string
}

// Runner drives the pipeline over a batch of papers with a bounded worker
// pool. Paper starts are spaced by Delay to stay polite toward arXiv.
type Runner struct {
	Pipeline *Pipeline

	// Workers is the pool size; values below 1 mean serial processing.
	Workers int

	// Delay is the minimum spacing between paper starts across all workers.
	Delay time.Duration

	// Output receives per-paper progress lines. Defaults to os.Stdout.
	Output io.Writer

	// DiagnosticsDir, when set, receives a YAML dump of the request
	// parameters and a truncated raw model response for every structuring
	// failure.
	DiagnosticsDir string

	// LLM holds the request parameters recorded in diagnostics dumps.
	LLM types.LLMConfig

	// OnOutcome, when set, is called with every finished outcome (for
	// persistence). It runs on the worker goroutine.
	OnOutcome func(Outcome) error
}

func (r *Runner) output() io.Writer {
	if r.Output != nil {
		return r.Output
	}
	return os.Stdout
}

func (r *Runner) limiter() *rate.Limiter {
	if r.Delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(r.Delay), 1)
}

// Run processes papers through the pipeline in mode, returning aggregate
// stats. A cancelled context stops scheduling new papers; papers already in
// flight finish (their HTTP calls observe the same context).
func (r *Runner) Run(ctx context.Context, papers []types.Paper, mode Mode) Snapshot {
	return r.runPool(ctx, len(papers), func(ctx context.Context, i int) Outcome {
		return r.Pipeline.ProcessPaper(ctx, papers[i], mode)
	})
}

// RunSections structures previously harvested section texts.
func (r *Runner) RunSections(ctx context.Context, items []SectionItem) Snapshot {
	return r.runPool(ctx, len(items), func(ctx context.Context, i int) Outcome {
		return r.Pipeline.StructureSection(ctx, items[i].PaperID, items[i].Text)
	})
}

func (r *Runner) runPool(ctx context.Context, n int, process func(context.Context, int) Outcome) Snapshot {
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	stats := &Stats{}
	limiter := r.limiter()
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					stats.Skip()
					continue
				}
				r.finish(stats, process(ctx, i))
			}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			// Remaining papers are skipped, not failed.
			stats.Skip()
			continue
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return stats.Snapshot()
}

func (r *Runner) finish(stats *Stats, out Outcome) {
	w := r.output()
	if out.Failed() {
		stats.Failure(out.Kind)
		fmt.Fprintf(w, "failed: %s (%s at %s: %s)\n", out.PaperID, out.Kind, out.FailedAt, out.Err)
		if out.Kind == ErrLLM && out.RawResponse != "" {
			if err := r.dumpDiagnostics(out); err != nil {
				fmt.Fprintf(w, "  warning: writing diagnostics for %s: %v\n", out.PaperID, err)
			}
		}
	} else {
		stats.Success()
		switch out.Step {
		case StepReferencesFound:
			fmt.Fprintf(w, "harvested: %s (%d chars, score %d)\n", out.PaperID, len(out.Section.Text), out.Section.Score)
		default:
			fmt.Fprintf(w, "completed: %s (%d references)\n", out.PaperID, len(out.Records))
		}
	}

	if r.OnOutcome != nil {
		if err := r.OnOutcome(out); err != nil {
			fmt.Fprintf(w, "  warning: persisting outcome for %s: %v\n", out.PaperID, err)
		}
	}
}

// maxDiagnosticsResponse bounds the raw model text kept in a diagnostics
// dump; anything beyond it is noise for debugging and bloats the file.
const maxDiagnosticsResponse = 10000

// llmDiagnostics is the on-disk dump written for structuring failures. It
// records the request parameters alongside a truncated raw response so a
// failure can be reproduced without grepping logs.
type llmDiagnostics struct {
	PaperID     string    `yaml:"paper_id"`
	Error       string    `yaml:"error"`
	Timestamp   time.Time `yaml:"timestamp"`
	Provider    string    `yaml:"provider"`
	Model       string    `yaml:"model"`
	MaxTokens   int       `yaml:"max_tokens"`
	Temperature float64   `yaml:"temperature"`
	MaxChars    int       `yaml:"max_chars"`
	RawResponse string    `yaml:"raw_response"`
}

func (r *Runner) dumpDiagnostics(out Outcome) error {
	if r.DiagnosticsDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.DiagnosticsDir, 0o755); err != nil {
		return fmt.Errorf("creating diagnostics directory: %w", err)
	}
	raw := out.RawResponse
	if len(raw) > maxDiagnosticsResponse {
		raw = raw[:maxDiagnosticsResponse] + "... [truncated]"
	}
	data, err := yaml.Marshal(llmDiagnostics{
		PaperID:     out.PaperID,
		Error:       out.Err,
		Timestamp:   time.Now().UTC(),
		Provider:    r.LLM.Provider,
		Model:       r.LLM.Model,
		MaxTokens:   r.LLM.MaxTokens,
		Temperature: r.LLM.Temperature,
		MaxChars:    r.LLM.MaxChars,
		RawResponse: raw,
	})
	if err != nil {
		return fmt.Errorf("marshaling diagnostics: %w", err)
	}
	path := filepath.Join(r.DiagnosticsDir, sanitizeID(out.PaperID)+".llm-failure.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing diagnostics: %w", err)
	}
	return nil
}
