// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pdiddy/refextract/internal/arxiv"
	"github.com/pdiddy/refextract/pkg/types"
)

var addCmd = &cobra.Command{
	Use:   "add [arxiv-ids...]",
	Short: "Register arXiv papers for extraction",
	Long: `Add registers papers by arXiv ID (bare, prefixed, or as an arxiv.org URL)
and fetches their metadata from the arXiv API. Re-adding a paper refreshes
its metadata. Registered papers are picked up by harvest and extract.`,
	RunE: runAdd,
}

func init() {
	addCmd.Flags().Bool("no-metadata", false, "skip the arXiv API metadata fetch")

	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more arXiv identifiers")
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	noMetadata, _ := cmd.Flags().GetBool("no-metadata")
	client := &http.Client{Timeout: defaultTimeout}
	ctx := cmd.Context()

	failed := 0
	for _, raw := range args {
		id, err := arxiv.NormalizeID(raw)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %q: %v\n", raw, err)
			failed++
			continue
		}

		paper := types.Paper{ID: id, PDFURL: arxiv.PDFURL(id)}
		if !noMetadata {
			if err := arxiv.FetchMetadata(ctx, client, id, &paper); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "  warning: metadata fetch for %s failed: %v\n", id, err)
			}
		}

		if err := s.UpsertPaper(ctx, paper); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "registering %s: %v\n", id, err)
			failed++
			continue
		}

		if paper.Title != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "added: %s (%s)\n", id, paper.Title)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "added: %s\n", id)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d identifier(s) failed", failed)
	}
	return nil
}
