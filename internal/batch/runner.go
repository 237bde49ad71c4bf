// Package batch executa uma checagem completa: login, roster e a consulta de
// cada aluno no navegador, sempre em sequência.
package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/iZcy/kkn-script-presensi/internal/browser"
	"github.com/iZcy/kkn-script-presensi/internal/calendar"
	"github.com/iZcy/kkn-script-presensi/internal/portal"
	"github.com/iZcy/kkn-script-presensi/pkg/metrics"
	"github.com/rs/zerolog"
)

// Session é a parte da sessão autenticada usada pelo runner.
type Session interface {
	Roster(ctx context.Context) ([]attendance.Student, error)
	Cookies() []*http.Cookie
}

type Authenticator interface {
	Authenticate(ctx context.Context, cred portal.Credential) (Session, error)
}

type AuthenticateFunc func(ctx context.Context, cred portal.Credential) (Session, error)

func (f AuthenticateFunc) Authenticate(ctx context.Context, cred portal.Credential) (Session, error) {
	return f(ctx, cred)
}

// PortalAuth adapta o *portal.Authenticator.
func PortalAuth(a *portal.Authenticator) AuthenticateFunc {
	return func(ctx context.Context, cred portal.Credential) (Session, error) {
		s, err := a.Authenticate(ctx, cred)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type StudentLookup interface {
	Student(ctx context.Context, cookies []*http.Cookie, query string, date time.Time) (attendance.Status, error)
}

// BrowserFactory abre o navegador da execução. O close devolvido é chamado
// uma vez, em qualquer caminho de saída.
type BrowserFactory func(ctx context.Context) (lookup StudentLookup, close func() error, err error)

// RodBrowsers lança um Chromium por execução, varrendo perfis órfãos antes.
func RodBrowsers(opts browser.Options, lopts browser.LookupOptions, log zerolog.Logger) BrowserFactory {
	return func(ctx context.Context) (StudentLookup, func() error, error) {
		browser.SweepOrphanProfiles(os.TempDir(), browser.OrphanProfileTTL, log)

		b, err := browser.Launch(ctx, opts, log)
		if err != nil {
			return nil, nil, err
		}
		return browser.NewLookup(b.Browser, lopts, log), b.Close, nil
	}
}

// Sink recebe a execução terminada. Falhas são só logadas.
type Sink interface {
	Name() string
	Write(ctx context.Context, run *attendance.Run) error
}

type Runner struct {
	auth     Authenticator
	browsers BrowserFactory
	sinks    []Sink
	metrics  *metrics.Recorder
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

func NewRunner(auth Authenticator, browsers BrowserFactory, log zerolog.Logger) *Runner {
	return &Runner{
		auth:     auth,
		browsers: browsers,
		loc:      time.Local,
		now:      time.Now,
		log:      log.With().Str("component", "batch").Logger(),
	}
}

func (r *Runner) WithSinks(sinks ...Sink) *Runner {
	r.sinks = append(r.sinks, sinks...)
	return r
}

func (r *Runner) WithMetrics(m *metrics.Recorder) *Runner {
	r.metrics = m
	return r
}

// WithLocation define o fuso usado para decidir qual é o dia de hoje.
func (r *Runner) WithLocation(loc *time.Location) *Runner {
	if loc != nil {
		r.loc = loc
	}
	return r
}

// Run faz uma checagem completa. Erros de login, roster ou navegador abortam
// a execução; falhas de um aluno viram status degradado. Com ctx cancelado
// os alunos restantes são registrados como Error, então o resultado sempre
// tem uma entrada por aluno do roster.
func (r *Runner) Run(ctx context.Context, cred portal.Credential) (*attendance.Run, error) {
	r.metrics.Inc(ctx, metrics.RunsTotal)

	started := r.now().In(r.loc)
	run := &attendance.Run{
		ID:        uuid.NewString(),
		Date:      started.Format(attendance.DateLayout),
		StartedAt: started,
	}
	log := r.log.With().Str("run", run.ID).Logger()

	session, err := r.auth.Authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}

	students, err := session.Roster(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Int("students", len(students)).Str("date", run.Date).Msg("Roster carregado")

	run.Results = make([]attendance.Result, 0, len(students))
	if len(students) > 0 {
		if err := r.checkAll(ctx, log, session, students, run); err != nil {
			return nil, err
		}
	}

	run.FinishedAt = r.now().In(r.loc)
	r.metrics.Add(ctx, metrics.StudentsCheckedTotal, int64(len(run.Results)))
	r.metrics.Add(ctx, metrics.StudentsDegradedTotal, int64(run.Count(attendance.Unknown)+run.Count(attendance.Error)))

	r.publish(log, run)
	return run, nil
}

func (r *Runner) checkAll(ctx context.Context, log zerolog.Logger, session Session, students []attendance.Student, run *attendance.Run) error {
	lookup, closeBrowser, err := r.browsers(ctx)
	if err != nil {
		return fmt.Errorf("erro iniciando browser: %w", err)
	}
	defer func() {
		if err := closeBrowser(); err != nil {
			log.Warn().Err(err).Msg("Erro fechando browser")
		}
	}()

	cookies := session.Cookies()
	for i, st := range students {
		if err := ctx.Err(); err != nil {
			for _, rest := range students[i:] {
				run.Results = append(run.Results, attendance.Result{
					Student: rest,
					Date:    run.Date,
					Status:  attendance.StatusError,
					Err:     err.Error(),
				})
			}
			log.Warn().Err(err).Int("skipped", len(students)-i).Msg("Execução cancelada")
			return nil
		}

		res := r.checkOne(ctx, lookup, cookies, st, run.StartedAt)
		run.Results = append(run.Results, res)

		ev := log.Info()
		if res.Err != "" {
			ev = log.Warn().Str("cause", res.Err)
		}
		ev.Str("student", st.Name).
			Str("student_id", st.StudentID).
			Str("status", res.Status.Kind.String()).
			Str("time", res.Status.Time).
			Msgf("[%d/%d] Aluno verificado", i+1, len(students))
	}
	return nil
}

// checkOne nunca propaga erro nem panic: o pior caso é um status Error.
func (r *Runner) checkOne(ctx context.Context, lookup StudentLookup, cookies []*http.Cookie, st attendance.Student, day time.Time) (res attendance.Result) {
	res = attendance.Result{Student: st, Date: day.Format(attendance.DateLayout)}

	defer func() {
		if p := recover(); p != nil {
			res.Status = attendance.StatusError
			res.Err = fmt.Sprintf("panic: %v", p)
		}
	}()

	status, err := lookup.Student(ctx, cookies, st.Name, day)
	switch {
	case err == nil:
		res.Status = status
	case errors.Is(err, browser.ErrStudentNotFound),
		errors.Is(err, browser.ErrLookupTimeout),
		errors.Is(err, calendar.ErrNavigation):
		res.Status = attendance.StatusUnknown
		res.Err = err.Error()
	default:
		res.Status = attendance.StatusError
		res.Err = err.Error()
	}
	return res
}

func (r *Runner) publish(log zerolog.Logger, run *attendance.Run) {
	if len(r.sinks) == 0 {
		return
	}
	// os sinks rodam mesmo se a requisição original já foi cancelada
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range r.sinks {
		if err := s.Write(ctx, run); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("Erro publicando resultados")
			continue
		}
		log.Debug().Str("sink", s.Name()).Msg("Resultados publicados")
	}
}
