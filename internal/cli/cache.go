package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/codyseavey/manga-translator/internal/config"
	"github.com/codyseavey/manga-translator/internal/models"
)

// NewCacheCmd creates the 'cache' command group for inspecting and maintaining the cache
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the translation cache",
	}

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheExportCmd())
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheCleanupCmd())

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCache(config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.cache.Statistics()
			if err != nil {
				return fmt.Errorf("failed to compute statistics: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func newCacheExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every cache entry as JSON",
		Example: `  mangatl cache export > backup.json
  mangatl cache export -o backup.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCache(config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.cache.Export()
			if err != nil {
				return fmt.Errorf("failed to export cache: %w", err)
			}
			if entries == nil {
				entries = []models.TranslationCache{}
			}

			if output == "" {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()
			if err := writeJSON(f, entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries to %s\n", len(entries), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache entry, favorites included",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}

			a, err := openCache(config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cache.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deleting all entries")
	return cmd
}

func newCacheCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the size, count and age eviction policies now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCache(config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.cache.Cleanup()
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries (size: %d, count: %d, age: %d)\n",
				report.Total(), report.SizeEvicted, report.CountEvicted, report.AgeEvicted)
			return nil
		},
	}
}

func printStats(out io.Writer, stats *models.CacheStatistics) {
	fmt.Fprintf(out, "Entries:    %d\n", stats.TotalEntries)
	fmt.Fprintf(out, "Size:       %d chars\n", stats.TotalBytes)
	fmt.Fprintf(out, "Total uses: %d\n", stats.TotalUsage)
	fmt.Fprintf(out, "Favorites:  %d\n", stats.FavoritedEntries)
	if stats.AverageRating != nil {
		fmt.Fprintf(out, "Rating:     %.2f (%d rated)\n", *stats.AverageRating, stats.RatedEntries)
	} else {
		fmt.Fprintln(out, "Rating:     none")
	}

	if len(stats.ByTargetLanguage) == 0 {
		return
	}
	langs := make([]string, 0, len(stats.ByTargetLanguage))
	for lang := range stats.ByTargetLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	fmt.Fprintln(out, "By target language:")
	for _, lang := range langs {
		fmt.Fprintf(out, "  %-6s %d\n", lang, stats.ByTargetLanguage[lang])
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
