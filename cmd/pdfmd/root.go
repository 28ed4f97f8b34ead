package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toricodesthings/pdfmd/internal/config"
	"github.com/toricodesthings/pdfmd/internal/hybrid"
	"github.com/toricodesthings/pdfmd/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "pdfmd",
	Short: "Convert PDFs to Markdown and plain text, using OCR only where needed",
	Long: `pdfmd converts a PDF page by page. Pages with a usable text layer are
extracted directly; scanned or garbled pages are rasterized and sent to OCR.

Output is written next to the input (or to --output-dir):
  <name>.md         page-delimited Markdown
  <name>.txt        the same content as plain text
  <name>.meta.json  per-page modes, timings and errors`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./pdfmd.yaml or ~/.pdfmd/pdfmd.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "warn", "log level: debug, info, warn or error",
	)

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(prescanCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func loadConfig() (*config.Config, error) {
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newProcessor(cfg *config.Config, logger *slog.Logger) *hybrid.Processor {
	return hybrid.New(
		hybrid.WithLogger(logger),
		hybrid.WithOpener(hybrid.PopplerOpener(cfg.Tools())),
		hybrid.WithEngineFactory(hybrid.ResolveEngine(cfg.OCREngine())),
	)
}
