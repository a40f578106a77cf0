package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSourcesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the catalogued sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(opts, stderrOrDiscard(cmd))
			if err != nil {
				return err
			}
			defer eng.close()

			for _, id := range eng.catalog.IDs() {
				meta, _ := eng.catalog.Lookup(id)
				label := meta.Name
				if meta.Title != "" {
					label += " · " + meta.Title
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s %-8s %s\n", id, meta.Type, meta.Interval, label)
			}

			return nil
		},
	}
}
