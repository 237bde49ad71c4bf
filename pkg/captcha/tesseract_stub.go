//go:build notesseract

package captcha

import (
	"context"
	"fmt"
)

// Tesseract sem libtesseract: compilado com -tags notesseract para hosts que
// usam só o engine remoto (captcha.engine: nats).
type Tesseract struct {
	Languages []string
}

func NewTesseract() *Tesseract {
	return &Tesseract{Languages: []string{"eng"}}
}

func (t *Tesseract) RecognizeDigits(_ context.Context, _ []byte) (string, error) {
	return "", fmt.Errorf("%w: binário compilado sem tesseract (tag notesseract)", ErrEngineUnavailable)
}
