// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/refextract/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the full extraction pipeline over registered papers",
	Long: `Extract downloads each registered paper's PDF, extracts its text, locates
the reference section, and structures it into bibliography records with the
configured language model. Results are stored in the extraction database;
the raw model output of failed structuring calls is kept under
<data-dir>/diagnostics.`,
	RunE: runExtract,
}

func init() {
	registerBatchFlags(extractCmd)
	registerLLMFlags(extractCmd)
	extractCmd.Flags().Bool("keep-pdfs", false, "keep downloaded PDFs after each paper finishes (default: removed)")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := batchConfig(cmd)
	papers, err := s.ListPapers(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if len(papers) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no papers to process")
		return nil
	}

	p, err := buildPipeline(cmd, true)
	if err != nil {
		return err
	}

	snap := newRunner(cmd, p, s, cfg).Run(cmd.Context(), papers, pipeline.ModeFull)
	fmt.Fprintf(cmd.OutOrStdout(), "done: %s\n", snap)
	if snap.HasFailures() {
		return fmt.Errorf("%d paper(s) failed", snap.Failed())
	}
	return nil
}
