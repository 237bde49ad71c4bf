package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "presensi:metrics:"

// Nomes dos contadores incrementados pelo checker.
const (
	RunsTotal             = "runs_total"
	RunsRejectedTotal     = "runs_rejected_total"
	CaptchaAttemptsTotal  = "captcha_attempts_total"
	CaptchaFailuresTotal  = "captcha_failures_total"
	StudentsCheckedTotal  = "students_checked_total"
	StudentsDegradedTotal = "students_degraded_total"
)

// MetricDef define o mapeamento entre um contador e uma métrica Prometheus.
type MetricDef struct {
	Name string
	Help string
	Type string // "counter" ou "gauge"
}

func (m MetricDef) RedisKey() string { return keyPrefix + m.Name }
func (m MetricDef) PromName() string { return "presensi_" + m.Name }

// Defs é o conjunto exposto em /metrics.
var Defs = []MetricDef{
	{RunsTotal, "Execuções de checagem iniciadas", "counter"},
	{RunsRejectedTotal, "Execuções recusadas por já haver uma em andamento", "counter"},
	{CaptchaAttemptsTotal, "Tentativas de captcha (inclusive OCR inválido)", "counter"},
	{CaptchaFailuresTotal, "Logins que esgotaram as tentativas de captcha", "counter"},
	{StudentsCheckedTotal, "Alunos consultados", "counter"},
	{StudentsDegradedTotal, "Alunos com status unknown ou error", "counter"},
}

// Recorder incrementa contadores. Com Redis os valores são compartilhados
// entre réplicas; sem Redis ficam em memória. Um Recorder nil ignora tudo.
type Recorder struct {
	rdb *redis.Client

	mu    sync.Mutex
	local map[string]int64
}

func NewRecorder(rdb *redis.Client) *Recorder {
	return &Recorder{rdb: rdb, local: make(map[string]int64)}
}

func (r *Recorder) Inc(ctx context.Context, name string) {
	r.Add(ctx, name, 1)
}

func (r *Recorder) Add(ctx context.Context, name string, n int64) {
	if r == nil || n == 0 {
		return
	}
	if r.rdb != nil {
		if err := r.rdb.IncrBy(ctx, keyPrefix+name, n).Err(); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("metrics: erro incrementando contador")
		}
		return
	}
	r.mu.Lock()
	r.local[name] += n
	r.mu.Unlock()
}

// Value lê o valor atual; contador inexistente vale 0.
func (r *Recorder) Value(ctx context.Context, name string) int64 {
	if r == nil {
		return 0
	}
	if r.rdb != nil {
		val, err := r.rdb.Get(ctx, keyPrefix+name).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("metric", name).Msg("metrics: erro ao ler chave")
		}
		return val
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local[name]
}

// Handler escreve as métricas no formato texto do Prometheus.
func (r *Recorder) Handler() http.Handler {
	defs := make([]MetricDef, len(Defs))
	copy(defs, Defs)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		for _, m := range defs {
			fmt.Fprintf(w, "# HELP %s %s\n", m.PromName(), m.Help)
			fmt.Fprintf(w, "# TYPE %s %s\n", m.PromName(), m.Type)
			fmt.Fprintf(w, "%s %d\n\n", m.PromName(), r.Value(req.Context(), m.Name))
		}
	})
}

// StartMetricsServer expõe /metrics em addr até ctx ser cancelado.
func StartMetricsServer(ctx context.Context, addr string, r *Recorder) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Metrics server ouvindo em /metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: falha ao iniciar servidor: %w", err)
	}
	return nil
}
