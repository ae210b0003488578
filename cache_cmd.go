package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator/internal/cache"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the synthesized segment cache",
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(m *cache.Manager) error {
				printCacheStats(cmd.OutOrStdout(), cfg.Cache.Dir, m.Stats())
				return nil
			})
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached segment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(m *cache.Manager) error {
				before := m.Stats().Disk
				if err := m.Clear(); err != nil {
					return fmt.Errorf("unable to clear cache: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s segments (%s)\n",
					humanize.Comma(before.Items), humanize.IBytes(uint64(before.Size))) //nolint:gosec
				return nil
			})
		},
	}

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete segments older than the cache TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(m *cache.Manager) error {
				n := m.Cleanup()
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s segments\n", humanize.Comma(int64(n)))
				return nil
			})
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePruneCmd)
}

func withCache(fn func(*cache.Manager) error) error {
	cc := cfg.CacheConfig()
	// One-shot commands need no background cleanup.
	cc.CleanupInterval = 0
	m, err := cache.NewManager(cc, log.Default())
	if err != nil {
		return fmt.Errorf("unable to open cache: %w", err)
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func printCacheStats(w io.Writer, dir string, s cache.ManagerStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush() //nolint:errcheck

	fmt.Fprintf(tw, "Directory\t%s\n", dir)
	fmt.Fprintf(tw, "Segments\t%s\n", humanize.Comma(s.Disk.Items))
	fmt.Fprintf(tw, "Size\t%s of %s\n",
		humanize.IBytes(uint64(s.Disk.Size)),     //nolint:gosec
		humanize.IBytes(uint64(s.Disk.Capacity))) //nolint:gosec
	fmt.Fprintf(tw, "Memory budget\t%s\n", humanize.IBytes(uint64(s.Memory.Capacity))) //nolint:gosec
}
