/*
Package main is the entry point for the mangatl CLI.

mangatl detects text on manga pages, translates it, and draws the translation
back over the original speech bubbles. Translations are cached in SQLite so a
page read twice is only translated once.

Usage:

	mangatl [command]

Available Commands:

	serve       Run the translation API server
	translate   Translate a single page
	cache       Inspect and maintain the translation cache

Configuration comes from the environment (and a .env file when present).
*/
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codyseavey/manga-translator/internal/cli"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "mangatl",
		Short: "Manga page translator with a persistent translation cache",
		Long: `mangatl runs OCR on manga pages, translates the detected text with Gemini
or Google Cloud Translation, and burns the result back into the page.

Every page translation is cached, so re-reading a chapter costs nothing.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewTranslateCmd())
	rootCmd.AddCommand(cli.NewCacheCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
