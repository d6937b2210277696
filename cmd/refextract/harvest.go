// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/refextract/internal/pipeline"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Locate and store reference sections without calling the model",
	Long: `Harvest runs the pipeline through section location only: download, text
extraction, and bibliography detection. The located section text is stored
so that process can structure it later. No API key is required.`,
	RunE: runHarvest,
}

func init() {
	registerBatchFlags(harvestCmd)
	harvestCmd.Flags().Bool("keep-pdfs", false, "keep downloaded PDFs after each paper finishes (default: removed)")

	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
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
		fmt.Fprintln(cmd.OutOrStdout(), "no papers to harvest")
		return nil
	}

	p, err := buildPipeline(cmd, false)
	if err != nil {
		return err
	}

	snap := newRunner(cmd, p, s, cfg).Run(cmd.Context(), papers, pipeline.ModeExtract)
	fmt.Fprintf(cmd.OutOrStdout(), "done: %s\n", snap)
	if snap.HasFailures() {
		return fmt.Errorf("%d paper(s) failed", snap.Failed())
	}
	return nil
}
