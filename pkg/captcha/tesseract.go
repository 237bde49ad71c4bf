//go:build !notesseract

package captcha

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract usa a libtesseract local via gosseract.
type Tesseract struct {
	Languages []string
}

func NewTesseract() *Tesseract {
	return &Tesseract{Languages: []string{"eng"}}
}

// RecognizeDigits roda o OCR em modo palavra única (PSM 8) com whitelist numérica.
// Um client novo por chamada: o client do gosseract não é seguro entre goroutines.
func (t *Tesseract) RecognizeDigits(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(t.Languages) > 0 {
		if err := client.SetLanguage(t.Languages...); err != nil {
			return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_WORD); err != nil {
		return "", fmt.Errorf("erro configurando psm: %w", err)
	}
	if err := client.SetWhitelist(DigitWhitelist); err != nil {
		return "", fmt.Errorf("erro configurando whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("erro carregando imagem no tesseract: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return text, nil
}
