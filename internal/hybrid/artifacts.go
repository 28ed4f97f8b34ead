package hybrid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/toricodesthings/pdfmd/internal/types"
)

type pageMetadata struct {
	PageNumber      int     `json:"page_number"`
	Mode            string  `json:"mode"`
	DurationSeconds float64 `json:"duration_seconds"`
	TextLength      int     `json:"text_length"`
	Error           string  `json:"error"`
}

// metadata is the layout of <name>.meta.json.
type metadata struct {
	InputPDF        string         `json:"input_pdf"`
	OutputDir       string         `json:"output_dir"`
	MarkdownPath    string         `json:"markdown_path"`
	TextPath        string         `json:"text_path"`
	TotalPages      int            `json:"total_pages"`
	ProcessedPages  int            `json:"processed_pages"`
	ExtractedPages  int            `json:"extracted_pages"`
	OCRPages        int            `json:"ocr_pages"`
	Cancelled       bool           `json:"cancelled"`
	DurationSeconds float64        `json:"duration_seconds"`
	Errors          []string       `json:"errors"`
	Pages           []pageMetadata `json:"pages"`
}

// ArtifactPaths returns the markdown, text and metadata paths for input.
func ArtifactPaths(input, outDir string) (md, txt, meta string) {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outDir, stem+".md"),
		filepath.Join(outDir, stem+".txt"),
		filepath.Join(outDir, stem+".meta.json")
}

func writeArtifacts(res *types.ConversionResult, input, markdown, text string) error {
	res.MarkdownPath, res.TextPath, res.MetadataPath = ArtifactPaths(input, res.OutputDir)

	if err := os.WriteFile(res.MarkdownPath, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	if err := os.WriteFile(res.TextPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write text: %w", err)
	}

	meta := metadata{
		InputPDF:        res.InputPath,
		OutputDir:       res.OutputDir,
		MarkdownPath:    res.MarkdownPath,
		TextPath:        res.TextPath,
		TotalPages:      res.TotalPages,
		ProcessedPages:  res.ProcessedPages,
		ExtractedPages:  res.ExtractedPages,
		OCRPages:        res.OCRPages,
		Cancelled:       res.Cancelled,
		DurationSeconds: res.Duration.Seconds(),
		Errors:          res.Errors,
		Pages:           make([]pageMetadata, 0, len(res.Pages)),
	}
	if meta.Errors == nil {
		meta.Errors = []string{}
	}
	for _, pr := range res.Pages {
		meta.Pages = append(meta.Pages, pageMetadata{
			PageNumber:      pr.PageNumber,
			Mode:            string(pr.Mode),
			DurationSeconds: pr.Duration.Seconds(),
			TextLength:      pr.TextLength,
			Error:           pr.Error,
		})
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(res.MetadataPath, b, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
