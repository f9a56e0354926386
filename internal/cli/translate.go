package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/codyseavey/manga-translator/internal/config"
	"github.com/codyseavey/manga-translator/internal/services"
)

// NewTranslateCmd creates the 'translate' command running the pipeline once
func NewTranslateCmd() *cobra.Command {
	var target, source, hint string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "translate <image>",
		Short: "Translate a single page",
		Long: `Run OCR, translation and burn-in on one page image and print the result.

The translation cache is consulted and updated exactly as the server does.`,
		Example: `  mangatl translate ./chapter1/003.png
  mangatl translate page.jpg --target de --lang ja --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			req := services.PageRequest{
				ImagePath:       args[0],
				TargetLanguage:  firstNonEmpty(target, cfg.TargetLanguage),
				SourceLanguage:  firstNonEmpty(source, cfg.SourceLanguage),
				OCRLanguageHint: firstNonEmpty(hint, cfg.OCRLanguageHint),
			}
			return runTranslate(cmd.OutOrStdout(), cfg, req, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "Target language (overrides TARGET_LANGUAGE)")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Source language, or auto (overrides SOURCE_LANGUAGE)")
	cmd.Flags().StringVarP(&hint, "lang", "l", "", "OCR language hint (overrides OCR_LANGUAGE_HINT)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output the full result as JSON")

	return cmd
}

func runTranslate(out io.Writer, cfg *config.Config, req services.PageRequest, jsonOutput bool) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := a.pipeline.Translate(ctx, req, func(stage services.Stage, progress float64) {
		if !jsonOutput {
			fmt.Fprintf(out, "[%3.0f%%] %s\n", progress*100, stage)
		}
	})
	if err != nil {
		_, message := services.ClassifyError(err)
		return fmt.Errorf("%s: %w", message, err)
	}

	if jsonOutput {
		return writeJSON(out, result)
	}
	printResult(out, result)
	return nil
}

func printResult(out io.Writer, result *services.PageResult) {
	source := "translated"
	if result.FromCache {
		source = "cached"
	}
	fmt.Fprintf(out, "\n%d regions (%s, model %s, confidence %.2f)\n\n",
		len(result.Translations), source, result.Model, result.Confidence)

	for i, t := range result.Translations {
		box := t.Region.BoundingBox
		fmt.Fprintf(out, "  %d. [%d,%d %dx%d] %s\n", i+1, box.X, box.Y, box.Width, box.Height, t.Region.Text)
		fmt.Fprintf(out, "     -> %s\n", t.TranslatedText)
	}

	if result.EditedImagePath != "" {
		fmt.Fprintf(out, "\nOutput: %s\n", result.EditedImagePath)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
