package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/iZcy/kkn-script-presensi/internal/portal"
	"github.com/iZcy/kkn-script-presensi/pkg/metrics"
	"github.com/iZcy/kkn-script-presensi/pkg/runlock"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func postCheck(r http.Handler, user, pass string) *httptest.ResponseRecorder {
	form := url.Values{}
	if user != "" {
		form.Set("username", user)
	}
	if pass != "" {
		form.Set("password", pass)
	}
	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func okRun(_ context.Context, cred portal.Credential) (*attendance.Run, error) {
	return &attendance.Run{
		ID:   "run-1",
		Date: "2024-06-12",
		Results: []attendance.Result{{
			Student: attendance.Student{Name: "Budi", StudentID: "21012345"},
			Date:    "2024-06-12",
			Status:  attendance.PresentAt("08:15"),
		}},
	}, nil
}

func TestCheckReturnsResults(t *testing.T) {
	var got portal.Credential
	run := func(ctx context.Context, cred portal.Credential) (*attendance.Run, error) {
		got = cred
		return okRun(ctx, cred)
	}
	r := New(run, nil, nil, zerolog.Nop()).Router()

	rec := postCheck(r, "budi", "rahasia")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got.Username != "budi" || got.Password != "rahasia" {
		t.Errorf("credenciais não repassadas: %+v", got)
	}

	var body struct {
		Results []attendance.Record `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("json inválido: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].Status != "present" || *body.Results[0].Time != "08:15" {
		t.Errorf("resultados inesperados: %+v", body.Results)
	}
}

func TestCheckMissingFields(t *testing.T) {
	r := New(okRun, nil, nil, zerolog.Nop()).Router()

	if rec := postCheck(r, "budi", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("sem senha deveria ser 400, veio %d", rec.Code)
	}
}

func TestCheckPortalFailureIs502(t *testing.T) {
	run := func(context.Context, portal.Credential) (*attendance.Run, error) {
		return nil, &portal.Error{Kind: portal.ErrCaptchaExhausted, Op: "captcha"}
	}
	r := New(run, nil, nil, zerolog.Nop()).Router()

	rec := postCheck(r, "u", "p")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("corpo deveria ter o campo error: %s", rec.Body.String())
	}
}

func TestConcurrentTriggerIsRejected(t *testing.T) {
	started := make(chan struct{})
	finish := make(chan struct{})
	run := func(ctx context.Context, cred portal.Credential) (*attendance.Run, error) {
		close(started)
		<-finish
		return okRun(ctx, cred)
	}
	m := metrics.NewRecorder(nil)
	r := New(run, runlock.NewLocal(), m, zerolog.Nop()).Router()

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- postCheck(r, "u", "p") }()
	<-started

	begin := time.Now()
	rec := postCheck(r, "u", "p")
	if rec.Code != http.StatusConflict {
		t.Fatalf("segunda requisição deveria ser 409, veio %d", rec.Code)
	}
	if time.Since(begin) > time.Second {
		t.Errorf("a recusa deveria ser imediata, não enfileirada")
	}
	if !strings.Contains(rec.Body.String(), busyMessage) {
		t.Errorf("mensagem de ocupado ausente: %s", rec.Body.String())
	}

	close(finish)
	if res := <-first; res.Code != http.StatusOK {
		t.Errorf("primeira requisição deveria terminar com 200, veio %d", res.Code)
	}
	if v := m.Value(context.Background(), metrics.RunsRejectedTotal); v != 1 {
		t.Errorf("runs_rejected_total = %d", v)
	}

	// depois de liberar, uma nova execução é aceita
	r2 := New(okRun, runlock.NewLocal(), nil, zerolog.Nop()).Router()
	if rec := postCheck(r2, "u", "p"); rec.Code != http.StatusOK {
		t.Errorf("execução após liberar deveria passar, veio %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r := New(okRun, nil, metrics.NewRecorder(nil), zerolog.Nop()).Router()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "presensi_runs_total") {
		t.Errorf("/metrics = %d %s", rec.Code, rec.Body.String())
	}
}
