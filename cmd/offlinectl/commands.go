package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/vytor/hanziflash/internal/services"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize what is cached",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !c.app.Manager.Available() {
				fmt.Fprintln(out, "offline storage: disabled")
				return nil
			}
			status, err := c.app.Manager.GetOfflineStatusSnapshot(ctx)
			if err != nil {
				return err
			}
			withAudio := 0
			for _, s := range status {
				if s.AudioStored {
					withAudio++
				}
			}
			collections, err := c.app.Manager.GetOfflineCollections(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "offline storage: %s\n", c.app.Config.OfflineDBPath)
			fmt.Fprintf(out, "cards cached:    %s\n", humanize.Comma(int64(len(status))))
			fmt.Fprintf(out, "with audio:      %s\n", humanize.Comma(int64(withAudio)))
			fmt.Fprintf(out, "collections:     %s\n", humanize.Comma(int64(len(collections))))
			return nil
		}),
	}
}

func (c *cli) listCmd() *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached cards, newest first",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			cards, err := c.app.Study.OfflineCards(ctx)
			if err != nil {
				return err
			}
			cards = services.FilterByCollection(cards, collection)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tHANZI\tPINYIN\tAUDIO\tCREATED")
			for _, v := range cards {
				audio := "-"
				if v.Offline != nil && v.Offline.AudioStored {
					audio = "stored"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Hanzi, v.Pinyin, audio, humanize.Time(v.CreatedAt))
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().StringVar(&collection, "collection", "", "only cards in this collection")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <card-id>",
		Short: "Print a cached card as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			view, err := c.app.Study.OfflineCard(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}),
	}
}

func (c *cli) evictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evict <card-id>...",
		Short: "Remove cards and their audio from the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if _, err := c.app.Study.EvictCard(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "evicted %s\n", id)
			}
			return nil
		}),
	}
}

func (c *cli) clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached card and audio file",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}
			if err := c.app.Study.ClearOffline(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "offline cache cleared")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the cache")
	return cmd
}

func (c *cli) cacheCmd() *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "cache [card-id...]",
		Short: "Fetch cards from the remote store into the cache",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if collection == "" && len(args) == 0 {
				return fmt.Errorf("name at least one card or pass --collection")
			}
			for _, id := range args {
				ev, err := c.app.Study.CacheCard(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "cached %s (audio stored: %t)\n", id, ev.AudioStored)
			}
			if collection != "" {
				// Close drains the queue before returning.
				n, err := c.app.Study.EnqueueCollection(ctx, collection)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "caching %d cards of collection %s\n", n, collection)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&collection, "collection", "", "cache every card of this collection")
	return cmd
}
