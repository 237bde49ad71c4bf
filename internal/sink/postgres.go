// Package sink publica execuções terminadas em sistemas externos. Nenhum
// sink é lido de volta pelo checker.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS attendance_results (
    id BIGSERIAL PRIMARY KEY,
    run_id UUID NOT NULL,

    student_id VARCHAR(32) NOT NULL,
    name TEXT NOT NULL,
    date DATE NOT NULL,

    status VARCHAR(16) NOT NULL,
    time_text VARCHAR(16),
    error TEXT,
    checked_at TIMESTAMPTZ DEFAULT NOW(),

    -- uma linha por aluno por dia; checagens repetidas atualizam
    UNIQUE(student_id, date)
);

CREATE INDEX IF NOT EXISTS idx_attendance_date_status ON attendance_results(date, status);
`

const upsert = `
INSERT INTO attendance_results (run_id, student_id, name, date, status, time_text, error, checked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (student_id, date) DO UPDATE
SET run_id = EXCLUDED.run_id,
    name = EXCLUDED.name,
    status = EXCLUDED.status,
    time_text = EXCLUDED.time_text,
    error = EXCLUDED.error,
    checked_at = NOW()
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres grava cada resultado em attendance_results.
type Postgres struct {
	mu    sync.Mutex // *pgx.Conn não é seguro entre goroutines
	db    execer
	close func(context.Context) error
	log   zerolog.Logger
}

func NewPostgres(ctx context.Context, databaseURL string, log zerolog.Logger) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar no postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("banco não responde: %w", err)
	}

	p := &Postgres{db: conn, close: conn.Close, log: log.With().Str("component", "sink.postgres").Logger()}
	if err := p.initSchema(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("falha ao criar tabela: %w", err)
	}
	return p, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return err
	}
	p.log.Info().Msg("Schema do banco verificado/criado com sucesso")
	return nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Write(ctx context.Context, run *attendance.Run) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, res := range run.Results {
		var t, errText *string
		if res.Status.Time != "" {
			t = &res.Status.Time
		}
		if res.Err != "" {
			errText = &res.Err
		}
		_, err := p.db.Exec(ctx, upsert,
			run.ID,
			res.Student.StudentID,
			res.Student.Name,
			res.Date,
			res.Status.Kind.String(),
			t,
			errText,
		)
		if err != nil {
			return fmt.Errorf("erro gravando %s: %w", res.Student.StudentID, err)
		}
	}
	p.log.Info().Int("rows", len(run.Results)).Str("run", run.ID).Msg("Resultados gravados no postgres")
	return nil
}

func (p *Postgres) Close(ctx context.Context) error {
	if p.close == nil {
		return nil
	}
	return p.close(ctx)
}
