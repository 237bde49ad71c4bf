package captcha

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SampleLabel é o JSON salvo ao lado de cada imagem coletada.
type SampleLabel struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Valid     bool   `json:"valid"`
	Accepted  bool   `json:"accepted"`
	Attempt   int    `json:"attempt"`
	Timestamp string `json:"timestamp"`
}

// SampleStore guarda as imagens de captcha com o que o OCR leu e se o portal
// aceitou, para avaliar o threshold e treinar modelos depois.
//
// Estrutura gerada:
//
//	<dir>/<millis>_<uuid8>.img
//	<dir>/<millis>_<uuid8>_label.json
type SampleStore struct {
	dir string
}

// NewSampleStore retorna nil quando dir é vazio; um store nil não grava nada.
func NewSampleStore(dir string) (*SampleStore, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("erro criando diretório dataset '%s': %w", dir, err)
	}
	return &SampleStore{dir: dir}, nil
}

func (s *SampleStore) Save(a Attempt, attemptNo int, accepted bool) (string, error) {
	if s == nil {
		return "", nil
	}

	// UUID evita colisão entre processos gravando no mesmo milissegundo
	id := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), uuid.New().String()[:8])

	imgPath := filepath.Join(s.dir, id+".img")
	if err := os.WriteFile(imgPath, a.Image, 0644); err != nil {
		return "", fmt.Errorf("erro salvando imagem: %w", err)
	}

	label := SampleLabel{
		ID:        id,
		Text:      a.Text,
		Valid:     a.Valid,
		Accepted:  accepted,
		Attempt:   attemptNo,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, _ := json.MarshalIndent(label, "", "  ")

	labelPath := filepath.Join(s.dir, id+"_label.json")
	if err := os.WriteFile(labelPath, data, 0644); err != nil {
		os.Remove(imgPath)
		return "", fmt.Errorf("erro salvando label: %w", err)
	}
	return id, nil
}
