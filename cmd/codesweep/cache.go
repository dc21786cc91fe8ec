package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/cache"
	"github.com/codesweep/codesweep/internal/config"
)

var cachePruneAge time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count and access-time bounds",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSQLiteCache()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read cache stats: %w", err)
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %d\n", cyan("entries:"), stats.Entries)
		if stats.Entries > 0 {
			fmt.Printf("%s %s\n", cyan("oldest access:"), stats.OldestAccess.Format(time.RFC3339))
			fmt.Printf("%s %s\n", cyan("newest access:"), stats.NewestAccess.Format(time.RFC3339))
		}
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cache entries not accessed within the given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSQLiteCache()
		if err != nil {
			return err
		}
		defer store.Close()

		removed, err := store.Prune(cmd.Context(), cachePruneAge)
		if err != nil {
			return fmt.Errorf("failed to prune cache: %w", err)
		}
		fmt.Printf("removed %d entries\n", removed)
		return nil
	},
}

func openSQLiteCache() (*cache.SQLiteStore, error) {
	cfg, err := config.Load(".", flagConfigPath)
	if err != nil {
		return nil, err
	}
	path, err := cfg.CachePath()
	if err != nil {
		return nil, err
	}
	return cache.NewSQLiteStore(path)
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cachePruneCmd.Flags().DurationVar(&cachePruneAge, "age", 30*24*time.Hour, "Entries older than this are removed")
}
