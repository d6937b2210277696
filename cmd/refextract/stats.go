// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show extraction database statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	sum, err := s.Stats(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "papers:            %d\n", sum.Papers)
	fmt.Fprintf(w, "with sections:     %d\n", sum.WithSections)
	fmt.Fprintf(w, "with references:   %d\n", sum.WithReferences)
	fmt.Fprintf(w, "total references:  %d\n", sum.TotalReferences)

	if len(sum.FailuresByKind) > 0 {
		fmt.Fprintln(w, "failures:")
		kinds := make([]string, 0, len(sum.FailuresByKind))
		for k := range sum.FailuresByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-20s %d\n", k, sum.FailuresByKind[k])
		}
	}
	return nil
}
