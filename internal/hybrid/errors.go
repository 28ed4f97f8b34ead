package hybrid

import "errors"

// Setup errors abort a run before any page output is produced.
var (
	ErrInputNotFound      = errors.New("input PDF not found")
	ErrDocumentUnreadable = errors.New("unable to open PDF")
	ErrEmptyDocument      = errors.New("PDF contains zero pages")
	ErrOCRUnavailable     = errors.New("OCR is required for this document but no tesseract binary was found; install tesseract with English data or set the binary path")
	ErrOCRNotExecutable   = errors.New("tesseract was found but could not be executed; check the configured path and its execute permissions")
)

// IsSetupError reports whether err aborted a run as a whole.
func IsSetupError(err error) bool {
	return errors.Is(err, ErrInputNotFound) ||
		errors.Is(err, ErrDocumentUnreadable) ||
		errors.Is(err, ErrEmptyDocument) ||
		isEngineError(err)
}

func isEngineError(err error) bool {
	return errors.Is(err, ErrOCRUnavailable) || errors.Is(err, ErrOCRNotExecutable)
}
