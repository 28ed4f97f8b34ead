package ocr

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// DetectTesseract returns the first usable tesseract path: the explicit
// path, then $TESSERACT_PATH, then $PATH, then well-known install locations.
// It returns "" when nothing is found.
func DetectTesseract(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("TESSERACT_PATH")); p != "" && isFile(p) {
		return p
	}
	if p, err := exec.LookPath("tesseract"); err == nil {
		return p
	}
	for _, p := range candidatePaths() {
		if isFile(p) {
			return p
		}
	}
	return ""
}

func candidatePaths() []string {
	if runtime.GOOS == "windows" {
		var out []string
		for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)", "LOCALAPPDATA"} {
			if dir := os.Getenv(env); dir != "" {
				out = append(out, filepath.Join(dir, "Tesseract-OCR", "tesseract.exe"))
			}
		}
		return append(out, filepath.Join("tesseract", "tesseract.exe"))
	}
	return []string{
		"/usr/bin/tesseract",
		"/usr/local/bin/tesseract",
		"/opt/homebrew/bin/tesseract",
		filepath.Join("tesseract", "tesseract"),
	}
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
