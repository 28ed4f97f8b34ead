package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toricodesthings/pdfmd/internal/types"
)

var prescanJSON bool

var prescanCmd = &cobra.Command{
	Use:   "prescan <pdf>",
	Short: "Report whether a PDF will likely need OCR",
	Long: `Inspect the first pages of a PDF (conversion.prescan_pages, default 3)
and report whether any of them lacks a usable text layer.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		needsOCR, total, err := newProcessor(cfg, logger).Prescan(cmd.Context(), args[0], cfg.Settings())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if prescanJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(types.PrescanResult{Success: true, NeedsOCR: needsOCR, TotalPages: total})
		}
		fmt.Fprintf(out, "pages:     %d\n", total)
		fmt.Fprintf(out, "needs ocr: %t\n", needsOCR)
		return nil
	},
}

func init() {
	prescanCmd.Flags().BoolVar(&prescanJSON, "json", false, "print the result as JSON")
}
