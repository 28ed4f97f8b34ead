//go:build !gosseract

package ocr

import "fmt"

func newGosseract(int) (Engine, error) {
	return nil, fmt.Errorf("%w: gosseract support not compiled in (build with -tags gosseract)", ErrNotExecutable)
}
