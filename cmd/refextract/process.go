// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/refextract/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Structure previously harvested reference sections",
	Long: `Process sends stored reference-section text to the configured language
model and saves the structured records. Use harvest first to populate the
sections; with --skip-processed the two commands can be re-run until every
paper has records.`,
	RunE: runProcess,
}

func init() {
	registerBatchFlags(processCmd)
	registerLLMFlags(processCmd)

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := batchConfig(cmd)
	sections, err := s.ListSections(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no harvested sections to process")
		return nil
	}

	p, err := buildPipeline(cmd, true)
	if err != nil {
		return err
	}

	items := make([]pipeline.SectionItem, len(sections))
	for i, sec := range sections {
		items[i] = pipeline.SectionItem{PaperID: sec.PaperID, Text: sec.Text}
	}

	snap := newRunner(cmd, p, s, cfg).RunSections(cmd.Context(), items)
	fmt.Fprintf(cmd.OutOrStdout(), "done: %s\n", snap)
	if snap.HasFailures() {
		return fmt.Errorf("%d paper(s) failed", snap.Failed())
	}
	return nil
}
