package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

func newFetchCommand(opts *rootOptions) *cobra.Command {
	var latest bool
	var limit int

	cmd := &cobra.Command{
		Use:   "fetch <source-id>",
		Short: "Fetch one source through the cache tiers and print its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(opts, stderrOrDiscard(cmd))
			if err != nil {
				return err
			}
			defer eng.close()

			id := newsfeed.SourceID(args[0])
			if latest {
				eng.bus.MarkForRefresh(id)
			}

			snap, fetchErr := eng.fetcher.Fetch(cmd.Context(), id)
			printSnapshot(cmd, eng, snap, fetchErr, limit)

			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "bypass every cache tier for this fetch")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum items to print")

	return cmd
}

func printSnapshot(cmd *cobra.Command, eng *engine, snap newsfeed.SourceSnapshot, fetchErr error, limit int) {
	name := string(snap.ID)
	if meta, ok := eng.catalog.Lookup(snap.ID); ok {
		name = meta.Name
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s  [%s]\n", name, updatedLabel(snap, fetchErr))
	for idx, item := range snap.Items {
		if limit > 0 && idx >= limit {
			break
		}
		marker := ""
		if item.Extra != nil && item.Extra.Diff != nil && *item.Extra.Diff != 0 {
			marker = fmt.Sprintf(" (%+d)", *item.Extra.Diff)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%3d. %s%s\n     %s\n", idx+1, item.Title, marker, item.URL)
	}
}
