package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/toricodesthings/pdfmd/internal/types"
)

var (
	outputDir string
	flagDPI   int
	flagTess  string
	flagDehy  bool
	flagOnly  bool
	flagGray  bool
	flagAuto  bool
	flagThres bool
	flagScan  int
	flagQuiet bool
	flagOCR   string
)

var convertCmd = &cobra.Command{
	Use:   "convert <pdf>",
	Short: "Convert a PDF to Markdown and text",
	Long: `Convert a PDF to Markdown and text.

Flags override the configured conversion settings for this run only.
Press Ctrl+C once to stop after the current page (partial output is still
written); press it again to abort immediately.

Examples:
  pdfmd convert report.pdf
  pdfmd convert scan.pdf -o out/ --dpi 400 --threshold
  pdfmd convert mixed.pdf --ocr-only-if-no-text-layer=false`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&outputDir, "output-dir", "o", "", "output directory (default: the input's directory)")
	f.IntVar(&flagDPI, "dpi", 0, "OCR rasterization DPI (minimum 72)")
	f.StringVar(&flagTess, "tesseract-path", "", "explicit tesseract binary")
	f.BoolVar(&flagDehy, "dehyphenate", false, "join words hyphenated across line breaks")
	f.BoolVar(&flagOnly, "ocr-only-if-no-text-layer", true, "OCR only pages without a usable text layer")
	f.BoolVar(&flagGray, "grayscale", true, "convert page images to grayscale before OCR")
	f.BoolVar(&flagAuto, "autocontrast", true, "stretch page image contrast before OCR")
	f.BoolVar(&flagThres, "threshold", false, "binarize page images with an Otsu threshold before OCR")
	f.IntVar(&flagScan, "prescan-pages", 0, "pages inspected up front to decide whether OCR is needed")
	f.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress per-page progress")
	f.StringVar(&flagOCR, "engine", "", "OCR engine: tesseract, gosseract or mistral")
}

// overrides collects only the flags set on the command line.
func overrides(cmd *cobra.Command) types.SettingsOverrides {
	var o types.SettingsOverrides
	f := cmd.Flags()
	if f.Changed("dpi") {
		o.OCRDPI = &flagDPI
	}
	if f.Changed("dehyphenate") {
		o.Dehyphenate = &flagDehy
	}
	if f.Changed("ocr-only-if-no-text-layer") {
		o.OCROnlyIfNoTextLayer = &flagOnly
	}
	if f.Changed("grayscale") {
		o.PreprocessGrayscale = &flagGray
	}
	if f.Changed("autocontrast") {
		o.PreprocessAutocontrast = &flagAuto
	}
	if f.Changed("threshold") {
		o.PreprocessThreshold = &flagThres
	}
	if f.Changed("prescan-pages") {
		o.PrescanPages = &flagScan
	}
	return o
}

func runConvert(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	settings := overrides(cmd).Apply(cfg.Conversion)
	if cmd.Flags().Changed("tesseract-path") {
		settings.TesseractPath = flagTess
	}
	if cmd.Flags().Changed("engine") {
		cfg.OCR.Engine = flagOCR
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	out := outputDir
	if out == "" {
		out = cfg.OutputDir
	}

	proc := newProcessor(cfg, logger)

	// first interrupt cancels cooperatively, the second exits
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigs:
		case <-done:
			return
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "\ncancelling after the current page (Ctrl+C again to abort)")
		proc.Cancel()
		select {
		case <-sigs:
			os.Exit(130)
		case <-done:
		}
	}()

	res, err := proc.Convert(cmd.Context(), args[0], out, settings, progressPrinter(cmd.ErrOrStderr(), flagQuiet))
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), res)
	return nil
}

func printSummary(w io.Writer, res types.ConversionResult) {
	status := "completed"
	if res.Cancelled {
		status = "cancelled"
	}
	fmt.Fprintf(w, "%s: %d/%d pages (%d extracted, %d OCR) in %s\n",
		status, res.ProcessedPages, res.TotalPages, res.ExtractedPages, res.OCRPages,
		res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  markdown: %s\n", res.MarkdownPath)
	fmt.Fprintf(w, "  text:     %s\n", res.TextPath)
	fmt.Fprintf(w, "  metadata: %s\n", res.MetadataPath)
	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "%d page error(s):\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}
