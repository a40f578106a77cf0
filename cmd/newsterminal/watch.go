package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var column string

	cmd := &cobra.Command{
		Use:   "watch [source-id...]",
		Short: "Watch sources, batch-syncing stale ones and printing updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(opts, stderrOrDiscard(cmd))
			if err != nil {
				return err
			}
			defer eng.close()

			ids := watchedIDs(eng, args, column)
			if len(ids) == 0 {
				return fmt.Errorf("watch: no sources selected")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			updates, cancelSub, err := eng.bus.Subscribe("watch")
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer cancelSub()

			eng.coordinator.SetInView(ids...)
			go func() {
				if err := eng.coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					eng.logger.Warn("batch coordinator stopped", "error", err)
				}
			}()

			// Initial paint straight through the tier chain.
			for _, id := range ids {
				snap, fetchErr := eng.fetcher.Fetch(ctx, id)
				printHeadline(cmd, eng, snap, fetchErr)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case id, open := <-updates:
					if !open {
						return nil
					}
					// Changed ids re-read from memory; no redundant
					// network call happens here unless a refresh was
					// forced for the id.
					snap, fetchErr := eng.fetcher.Fetch(ctx, id)
					printHeadline(cmd, eng, snap, fetchErr)
				}
			}
		},
	}
	cmd.Flags().StringVar(&column, "column", "", "watch every source in a catalog column (e.g. hottest, realtime, tech)")

	return cmd
}

func watchedIDs(eng *engine, args []string, column string) []newsfeed.SourceID {
	if column != "" {
		return eng.catalog.ColumnIDs(column)
	}
	if len(args) > 0 {
		ids := make([]newsfeed.SourceID, 0, len(args))
		for _, arg := range args {
			ids = append(ids, newsfeed.SourceID(arg))
		}
		return ids
	}

	return eng.catalog.IDs()
}

func printHeadline(cmd *cobra.Command, eng *engine, snap newsfeed.SourceSnapshot, fetchErr error) {
	name := string(snap.ID)
	if meta, ok := eng.catalog.Lookup(snap.ID); ok {
		name = meta.Name
	}

	top := "(no items)"
	if len(snap.Items) > 0 {
		top = snap.Items[0].Title
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", updatedLabel(snap, fetchErr), name, top)
}
