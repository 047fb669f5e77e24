package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mend/internal/history"
)

var cacheClear bool

func init() {
	cacheCmd.Flags().BoolVar(&cacheClear, "clear", false, "drop all recorded decisions")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the decision-history cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := history.Open("mend")
		if err != nil {
			return fmt.Errorf("open decision cache: %w", err)
		}

		if cacheClear {
			if err := cache.DropAll(); err != nil {
				return fmt.Errorf("clear decision cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "decision cache cleared")
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), cache.Dir())
		return nil
	},
}
