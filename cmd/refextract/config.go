// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/refextract/internal/locate"
	"github.com/pdiddy/refextract/internal/pdftext"
	"github.com/pdiddy/refextract/internal/pipeline"
	"github.com/pdiddy/refextract/internal/secrets"
	"github.com/pdiddy/refextract/internal/store"
	"github.com/pdiddy/refextract/internal/structure"
	"github.com/pdiddy/refextract/pkg/types"
)

const (
	defaultTimeout = 60 * time.Second
	defaultDelay   = 1 * time.Second

	pdfsDir        = "pdfs"
	diagnosticsDir = "diagnostics"
)

func dataDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("data-dir")
	return dir
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	return store.NewStore(types.StoreConfig{DataDir: dataDir(cmd)})
}

// llmConfig builds the model configuration from flags, the config file, and
// loaded secrets, in that precedence order.
func llmConfig(cmd *cobra.Command) types.LLMConfig {
	cfg := types.LLMConfig{
		Provider:    viper.GetString("llm.provider"),
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		APIKey:      viper.GetString("llm.api_key"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxChars:    viper.GetInt("llm.max_chars"),
		Timeout:     viper.GetDuration("llm.timeout"),
	}
	if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
		cfg.Provider = provider
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Model = model
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = secrets.APIKey(loadedSecrets, cfg.Provider)
	}
	return cfg
}

// registerLLMFlags adds the model-selection flags shared by commands that
// invoke the structuring stage.
func registerLLMFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "LLM provider (openai, anthropic, deepseek, ...)")
	cmd.Flags().String("model", "", "model identifier for structuring")
}

// registerBatchFlags adds the batch-control flags shared by pipeline
// commands.
func registerBatchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("workers", 1, "number of concurrent papers")
	cmd.Flags().Duration("delay", defaultDelay, "minimum spacing between paper starts")
	cmd.Flags().Int("limit", 0, "process at most this many papers (0 = all)")
	cmd.Flags().String("paper", "", "process only this paper ID")
	cmd.Flags().Bool("skip-processed", false, "skip papers that already have reference records")
	cmd.Flags().Bool("retry-failed", false, "process only papers whose last run failed")
}

func batchConfig(cmd *cobra.Command) types.BatchConfig {
	workers, _ := cmd.Flags().GetInt("workers")
	delay, _ := cmd.Flags().GetDuration("delay")
	limit, _ := cmd.Flags().GetInt("limit")
	paperID, _ := cmd.Flags().GetString("paper")
	skipProcessed, _ := cmd.Flags().GetBool("skip-processed")
	retryFailed, _ := cmd.Flags().GetBool("retry-failed")
	return types.BatchConfig{
		Workers:       workers,
		Delay:         delay,
		Limit:         limit,
		PaperID:       paperID,
		SkipProcessed: skipProcessed,
		RetryFailed:   retryFailed,
	}
}

// buildPipeline wires the extraction stages. withStructurer controls
// whether the LLM backend is constructed; harvest-only runs skip it so no
// API key is needed.
func buildPipeline(cmd *cobra.Command, withStructurer bool) (*pipeline.Pipeline, error) {
	dir := dataDir(cmd)
	keepPDFs, _ := cmd.Flags().GetBool("keep-pdfs")

	p := &pipeline.Pipeline{
		Downloader: pipeline.NewDownloader(types.DownloadConfig{
			HTTPConfig: types.HTTPConfig{Timeout: defaultTimeout},
			Dir:        filepath.Join(dir, pdfsDir),
		}),
		Extractor: pdftext.Extractor{},
		Locator:   locate.New(types.DefaultLocatorConfig()),
		KeepPDFs:  keepPDFs,
	}

	if withStructurer {
		cfg := llmConfig(cmd)
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no API key for provider %q (set llm.api_key, or add .secrets/%s-api-key)", cfg.Provider, cfg.Provider)
		}
		backend, err := structure.NewBackend(cfg)
		if err != nil {
			return nil, err
		}
		p.Structurer = structure.New(backend, cfg)
	}
	return p, nil
}

// newRunner builds the batch runner with persistence wired to the store.
// mode selects which artifacts each outcome persists.
func newRunner(cmd *cobra.Command, p *pipeline.Pipeline, s *store.Store, cfg types.BatchConfig) *pipeline.Runner {
	ctx := cmd.Context()

	p.Progress = func(paperID string, step pipeline.Step, detail string) {
		if err := s.LogStep(ctx, paperID, string(step), "", detail); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: logging step %s for %s: %v\n", step, paperID, err)
		}
	}

	return &pipeline.Runner{
		Pipeline:       p,
		Workers:        cfg.Workers,
		Delay:          cfg.Delay,
		Output:         cmd.OutOrStdout(),
		DiagnosticsDir: filepath.Join(dataDir(cmd), diagnosticsDir),
		LLM:            llmConfig(cmd),
		OnOutcome: func(out pipeline.Outcome) error {
			if out.Section != nil {
				if err := s.SaveSection(ctx, out.PaperID, *out.Section); err != nil {
					return err
				}
			}
			if out.Failed() {
				return s.LogStep(ctx, out.PaperID, string(pipeline.StepFailed), string(out.Kind), out.Err)
			}
			if out.Records != nil {
				return s.ReplaceReferences(ctx, out.PaperID, out.Records)
			}
			return nil
		},
	}
}
