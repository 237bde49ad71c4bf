package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRecorderRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	r := NewRecorder(rdb)
	r.Inc(ctx, RunsTotal)
	r.Add(ctx, StudentsCheckedTotal, 12)

	if got, _ := mr.Get("presensi:metrics:students_checked_total"); got != "12" {
		t.Errorf("valor no redis = %q, esperado 12", got)
	}
	if v := r.Value(ctx, RunsTotal); v != 1 {
		t.Errorf("runs_total = %d", v)
	}
	if v := r.Value(ctx, CaptchaFailuresTotal); v != 0 {
		t.Errorf("contador inexistente deveria ser 0, veio %d", v)
	}
}

func TestRecorderInMemory(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(nil)
	r.Inc(ctx, CaptchaAttemptsTotal)
	r.Inc(ctx, CaptchaAttemptsTotal)

	if v := r.Value(ctx, CaptchaAttemptsTotal); v != 2 {
		t.Errorf("captcha_attempts_total = %d", v)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Inc(context.Background(), RunsTotal)
	if v := r.Value(context.Background(), RunsTotal); v != 0 {
		t.Errorf("recorder nil deveria devolver 0")
	}
}

func TestHandlerPrometheusFormat(t *testing.T) {
	r := NewRecorder(nil)
	r.Add(context.Background(), StudentsDegradedTotal, 3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE presensi_students_degraded_total counter",
		"presensi_students_degraded_total 3\n",
		"presensi_runs_total 0\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("saída não contém %q:\n%s", want, body)
		}
	}
}
