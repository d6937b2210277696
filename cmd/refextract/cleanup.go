// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/refextract/internal/pipeline"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove downloaded PDFs older than a cutoff",
	Long: `Cleanup deletes PDFs under <data-dir>/pdfs whose modification time is
older than --days. Extraction results in the database are not touched; a
removed PDF is re-downloaded on the next extract run that needs it.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().Int("days", 7, "remove PDFs older than this many days")

	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	if days < 0 {
		return fmt.Errorf("--days must not be negative")
	}

	dir := filepath.Join(dataDir(cmd), pdfsDir)
	removed, reclaimed, err := pipeline.CleanupPDFs(dir, time.Duration(days)*24*time.Hour, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d PDF(s), reclaimed %d bytes\n", removed, reclaimed)
	return nil
}
