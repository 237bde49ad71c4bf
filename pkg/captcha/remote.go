package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// requester é o subconjunto de *nats.Conn usado pelo Remote.
type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Remote envia a imagem para um worker de OCR via NATS (request-reply).
// Útil quando o host que roda o checker não tem libtesseract instalada
// (binário compilado com -tags notesseract).
//
// Payload de request:
//
//	{"image_b64": "...", "whitelist": "0123456789", "psm": 8}
//
// Payload de response:
//
//	{"text": "123456", "success": true, "error": ""}
type Remote struct {
	nc      requester
	subject string
	timeout time.Duration
}

type remoteRequest struct {
	ImageB64  string `json:"image_b64"`
	Whitelist string `json:"whitelist"`
	PSM       int    `json:"psm"`
}

type remoteResponse struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func NewRemote(nc *nats.Conn, subject string, timeout time.Duration) *Remote {
	return newRemote(nc, subject, timeout)
}

func newRemote(nc requester, subject string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{nc: nc, subject: subject, timeout: timeout}
}

func (r *Remote) RecognizeDigits(ctx context.Context, img []byte) (string, error) {
	payload, err := json.Marshal(remoteRequest{
		ImageB64:  base64.StdEncoding.EncodeToString(img),
		Whitelist: DigitWhitelist,
		PSM:       8,
	})
	if err != nil {
		return "", fmt.Errorf("erro serializando payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.nc.RequestWithContext(ctx, r.subject, payload)
	if err != nil {
		return "", fmt.Errorf("%w: requisição NATS em %s: %v", ErrEngineUnavailable, r.subject, err)
	}

	var resp remoteResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return "", fmt.Errorf("erro parseando resposta do OCR remoto: %w", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("OCR remoto falhou: %s", resp.Error)
	}
	return resp.Text, nil
}
