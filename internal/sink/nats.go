package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const StreamName = "PRESENSI"

// RunMessage é o payload publicado ao fim de cada execução.
type RunMessage struct {
	RunID      string              `json:"run_id"`
	Date       string              `json:"date"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Counts     map[string]int      `json:"counts"`
	Results    []attendance.Record `json:"results"`
}

func NewRunMessage(run *attendance.Run) RunMessage {
	counts := map[string]int{}
	for _, k := range []attendance.Kind{attendance.Present, attendance.Absent, attendance.Pending, attendance.Unknown, attendance.Error} {
		counts[k.String()] = run.Count(k)
	}
	return RunMessage{
		RunID:      run.ID,
		Date:       run.Date,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Counts:     counts,
		Results:    run.Records(),
	}
}

type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Nats publica cada execução no JetStream para consumidores como o bot do grupo.
type Nats struct {
	js      publisher
	subject string
	log     zerolog.Logger
}

// NewNats garante que o stream exista e devolve o publisher.
func NewNats(nc *nats.Conn, subject string, log zerolog.Logger) (*Nats, error) {
	log = log.With().Str("component", "sink.nats").Logger()

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("erro JetStream: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		log.Warn().Err(err).Str("stream", StreamName).Msg("AddStream falhou (ok se já existe)")
	}

	return &Nats{js: js, subject: subject, log: log}, nil
}

func (n *Nats) Name() string { return "nats" }

func (n *Nats) Write(ctx context.Context, run *attendance.Run) error {
	data, err := json.Marshal(NewRunMessage(run))
	if err != nil {
		return fmt.Errorf("erro marshal payload %s: %w", run.ID, err)
	}

	// Nats-Msg-Id deduplica republicações da mesma execução
	ack, err := n.js.Publish(n.subject, data, nats.MsgId(run.ID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("erro publicar resultado %s: %w", run.ID, err)
	}
	n.log.Info().Str("run", run.ID).Str("subject", n.subject).Uint64("seq", ack.Sequence).Msg("Publicado")
	return nil
}
