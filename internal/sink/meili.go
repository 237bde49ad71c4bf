package sink

import (
	"context"
	"fmt"

	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const meiliPrimaryKey = "student_id"

// Document é o último status conhecido de um aluno no índice.
type Document struct {
	StudentID string  `json:"student_id"`
	Name      string  `json:"name"`
	Date      string  `json:"date"`
	Status    string  `json:"status"`
	Time      *string `json:"time"`
	RunID     string  `json:"run_id"`
	CheckedAt int64   `json:"checked_at"`
}

type documentUpdater interface {
	UpdateDocuments(documentsPtr interface{}, opts *meilisearch.DocumentOptions) (*meilisearch.TaskInfo, error)
}

// Meili mantém um documento por aluno (PK student_id) para busca por nome e
// filtro por status/data.
type Meili struct {
	index documentUpdater
	log   zerolog.Logger
}

// NewMeili cria a conexão e garante que o índice existe.
func NewMeili(host, apiKey, indexName string, log zerolog.Logger) *Meili {
	log = log.With().Str("component", "sink.meili").Logger()
	client := meilisearch.New(host, meilisearch.WithAPIKey(apiKey))

	_, err := client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        indexName,
		PrimaryKey: meiliPrimaryKey,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Aviso Meilisearch")
	}

	index := client.Index(indexName)
	index.UpdateSearchableAttributes(&[]string{"name", "student_id"})
	index.UpdateSortableAttributes(&[]string{"checked_at", "time"})
	filterableAttrs := []interface{}{"status", "date"}
	index.UpdateFilterableAttributes(&filterableAttrs)

	log.Info().Str("index", indexName).Msg("Conectado ao Meilisearch")
	return &Meili{index: index, log: log}
}

func (m *Meili) Name() string { return "meilisearch" }

func (m *Meili) Write(_ context.Context, run *attendance.Run) error {
	docs := Documents(run)
	if len(docs) == 0 {
		return nil
	}

	pk := meiliPrimaryKey
	task, err := m.index.UpdateDocuments(docs, &meilisearch.DocumentOptions{PrimaryKey: &pk})
	if err != nil {
		return fmt.Errorf("erro ao indexar documentos: %w", err)
	}
	m.log.Info().Int64("task", task.TaskUID).Int("docs", len(docs)).Msg("Enviado para Meilisearch via upsert")
	return nil
}

// Documents converte a execução para documentos do índice.
func Documents(run *attendance.Run) []Document {
	checkedAt := run.FinishedAt.Unix()
	docs := make([]Document, 0, len(run.Results))
	for _, res := range run.Results {
		rec := res.Record()
		docs = append(docs, Document{
			StudentID: rec.StudentID,
			Name:      rec.Name,
			Date:      rec.Date,
			Status:    rec.Status,
			Time:      rec.Time,
			RunID:     run.ID,
			CheckedAt: checkedAt,
		})
	}
	return docs
}
