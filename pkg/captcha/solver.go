package captcha

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// DigitWhitelist restringe o reconhecimento a dígitos.
const DigitWhitelist = "0123456789"

var ErrEngineUnavailable = errors.New("engine de OCR indisponível")

var sixDigits = regexp.MustCompile(`^\d{6}$`)

// ValidDigits verifica o formato exigido pelo portal: exatamente 6 dígitos.
func ValidDigits(text string) bool {
	return sixDigits.MatchString(text)
}

// Recognizer é um motor de OCR configurado para dígitos em linha única.
// Não faz retry: cada tentativa precisa de uma imagem nova.
type Recognizer interface {
	RecognizeDigits(ctx context.Context, img []byte) (string, error)
}

// Attempt é o resultado de uma tentativa de leitura, descartado após o uso.
type Attempt struct {
	Image []byte
	Text  string
	Valid bool
}

// Solver junta o pré-processamento e o motor de OCR.
type Solver struct {
	engine    Recognizer
	threshold uint8
}

func NewSolver(engine Recognizer, threshold uint8) *Solver {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Solver{engine: engine, threshold: threshold}
}

// Solve binariza a imagem e executa o OCR. Um texto fora do padrão não é erro:
// volta com Valid=false para o chamador descartar a tentativa.
func (s *Solver) Solve(ctx context.Context, raw []byte) (Attempt, error) {
	attempt := Attempt{Image: raw}

	processed, err := Preprocess(raw, s.threshold)
	if err != nil {
		return attempt, err
	}

	text, err := s.engine.RecognizeDigits(ctx, processed)
	if err != nil {
		return attempt, err
	}

	attempt.Text = strings.TrimSpace(text)
	attempt.Valid = ValidDigits(attempt.Text)
	return attempt, nil
}
