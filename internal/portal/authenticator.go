// Package portal faz o login no SIMASTER passando pelo SSO da UGM (CAS),
// resolvendo o captcha numérico quando o SSO exige, e lê o roster da unidade.
package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/iZcy/kkn-script-presensi/pkg/captcha"
	"github.com/iZcy/kkn-script-presensi/pkg/config"
	"github.com/iZcy/kkn-script-presensi/pkg/metrics"
	"github.com/rs/zerolog"
)

const (
	LoginPath    = "/ugmfw/signin_simaster/signin_proses"
	CASLoginPath = "/cas/login"
)

// Credential nunca é logada nem persistida.
type Credential struct {
	Username string
	Password string
}

type Options struct {
	BaseURL    string
	SSOURL     string
	ServiceURL string
	UserAgent  string
	UserField  string
	PassField  string
	// CaptchaField é o nome do campo da resposta no formulário do captcha.
	CaptchaField string
	Timeout      time.Duration

	MaxAttempts    int
	InvalidBackoff time.Duration
	RejectBackoff  time.Duration
	Detector       captcha.Detector
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:        cfg.Portal.BaseURL,
		SSOURL:         cfg.Portal.SSOURL,
		ServiceURL:     cfg.Portal.ServiceURL,
		UserAgent:      cfg.Portal.UserAgent,
		UserField:      cfg.Portal.UserField,
		PassField:      cfg.Portal.PassField,
		CaptchaField:   cfg.Portal.CaptchaField,
		Timeout:        cfg.PortalTimeout(),
		MaxAttempts:    cfg.Captcha.MaxAttempts,
		InvalidBackoff: cfg.InvalidBackoff(),
		RejectBackoff:  cfg.RejectBackoff(),
		Detector:       captcha.DefaultDetector,
	}
}

// Authenticator produz uma Session autenticada por credencial.
type Authenticator struct {
	opts    Options
	base    *url.URL
	sso     *url.URL
	solver  *captcha.Solver
	samples *captcha.SampleStore
	metrics *metrics.Recorder
	log     zerolog.Logger
}

func NewAuthenticator(opts Options, solver *captcha.Solver, log zerolog.Logger) (*Authenticator, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("base_url inválida: %w", err)
	}
	sso, err := url.Parse(opts.SSOURL)
	if err != nil {
		return nil, fmt.Errorf("sso_url inválida: %w", err)
	}

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.UserField == "" {
		opts.UserField = "username"
	}
	if opts.PassField == "" {
		opts.PassField = "password"
	}
	if opts.CaptchaField == "" {
		opts.CaptchaField = "captcha"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0"
	}
	if opts.Detector == (captcha.Detector{}) {
		opts.Detector = captcha.DefaultDetector
	}

	return &Authenticator{
		opts:   opts,
		base:   base,
		sso:    sso,
		solver: solver,
		log:    log.With().Str("component", "portal").Logger(),
	}, nil
}

// WithSamples ativa a coleta de amostras de captcha.
func (a *Authenticator) WithSamples(s *captcha.SampleStore) *Authenticator {
	a.samples = s
	return a
}

func (a *Authenticator) WithMetrics(r *metrics.Recorder) *Authenticator {
	a.metrics = r
	return a
}

// Authenticate percorre a cadeia SIMASTER → SSO → (captcha) e devolve a sessão.
// Qualquer etapa irrecuperável retorna um *Error.
func (a *Authenticator) Authenticate(ctx context.Context, cred Credential) (*Session, error) {
	s, err := a.newSession()
	if err != nil {
		return nil, err
	}

	entry, err := s.fetch(ctx, http.MethodGet, a.base.JoinPath(LoginPath).String(), nil)
	if err != nil {
		return nil, unreachable("login entry", err)
	}
	if entry.status != http.StatusOK {
		return nil, unreachable("login entry", statusError(entry.status))
	}

	casURL := a.sso.JoinPath(CASLoginPath)
	casURL.RawQuery = url.Values{"service": {a.opts.ServiceURL}}.Encode()

	loginPage, err := s.fetch(ctx, http.MethodGet, casURL.String(), nil)
	if err != nil {
		return nil, unreachable("sso login", err)
	}
	if loginPage.status != http.StatusOK {
		return nil, unreachable("sso login", statusError(loginPage.status))
	}

	form, err := loginPage.form("form#fm1")
	if err != nil {
		return nil, formNotFound("sso login", "formulário de login (form#fm1) não encontrado")
	}
	// tokens do CAS (lt, execution, _eventId) precisam voltar intactos
	form.values.Set(a.opts.UserField, cred.Username)
	form.values.Set(a.opts.PassField, cred.Password)

	a.log.Info().Msg("Enviando login ao SSO")
	resp, err := s.fetch(ctx, http.MethodPost, form.action, form.values)
	if err != nil {
		return nil, unreachable("sso submit", err)
	}
	if resp.status != http.StatusOK {
		return nil, unreachable("sso submit", statusError(resp.status))
	}

	if a.opts.Detector.IsChallenge(resp.url) {
		a.log.Warn().Msg("SSO exigiu captcha")
		if err := a.resolveCaptcha(ctx, s, resp); err != nil {
			return nil, err
		}
	}

	a.log.Info().Msg("Login concluído")
	return s, nil
}

func (a *Authenticator) newSession() (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("erro criando cookie jar: %w", err)
	}
	return &Session{
		client:    &http.Client{Jar: jar, Timeout: a.opts.Timeout},
		base:      a.base,
		userAgent: a.opts.UserAgent,
	}, nil
}

// resolveCaptcha tenta até MaxAttempts vezes. Toda tentativa conta, inclusive
// as que o OCR não leu 6 dígitos, para o loop ser sempre limitado.
func (a *Authenticator) resolveCaptcha(ctx context.Context, s *Session, challenge *page) error {
	form, err := challenge.form("form")
	if err != nil {
		return formNotFound("captcha", "formulário do captcha não encontrado")
	}
	action := form.action

	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// imagem e tokens são de uso único: sempre buscar a página de novo
		fresh, err := s.fetch(ctx, http.MethodGet, action, nil)
		if err != nil {
			return unreachable("captcha refresh", err)
		}
		if fresh.status != http.StatusOK {
			return unreachable("captcha refresh", statusError(fresh.status))
		}
		form, err := fresh.form("form")
		if err != nil {
			return formNotFound("captcha refresh", "formulário do captcha não encontrado")
		}
		src, ok := fresh.doc.Find("img#captchaView").First().Attr("src")
		if !ok || src == "" {
			return formNotFound("captcha refresh", "imagem do captcha (img#captchaView) não encontrada")
		}
		imgURL, err := a.base.Parse(src)
		if err != nil {
			return formNotFound("captcha refresh", "src do captcha inválido: "+src)
		}

		img, err := s.fetch(ctx, http.MethodGet, imgURL.String(), nil)
		if err != nil {
			return unreachable("captcha image", err)
		}
		if img.status != http.StatusOK {
			return unreachable("captcha image", statusError(img.status))
		}

		a.metrics.Inc(ctx, metrics.CaptchaAttemptsTotal)
		solved, err := a.solver.Solve(ctx, img.body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.Warn().Err(err).Int("attempt", attempt).Msg("OCR falhou, tentando de novo")
			if err := sleep(ctx, a.opts.InvalidBackoff); err != nil {
				return err
			}
			continue
		}

		a.log.Info().Int("attempt", attempt).Str("text", solved.Text).Msg("Captcha detectado")

		if !solved.Valid {
			a.saveSample(solved, attempt, false)
			a.log.Warn().Int("attempt", attempt).Msg("Resultado do OCR não tem 6 dígitos, tentando de novo")
			if err := sleep(ctx, a.opts.InvalidBackoff); err != nil {
				return err
			}
			continue
		}

		form.values.Set(a.opts.CaptchaField, solved.Text)
		resp, err := s.fetch(ctx, http.MethodPost, form.action, form.values)
		if err != nil {
			return unreachable("captcha submit", err)
		}

		accepted := resp.status == http.StatusOK && a.opts.Detector.IsSolved(resp.url)
		a.saveSample(solved, attempt, accepted)
		if accepted {
			a.log.Info().Int("attempt", attempt).Msg("Captcha aceito")
			return nil
		}

		a.log.Warn().Int("attempt", attempt).Int("status", resp.status).Msg("Captcha recusado pelo portal")
		if err := sleep(ctx, a.opts.RejectBackoff); err != nil {
			return err
		}
	}

	a.metrics.Inc(ctx, metrics.CaptchaFailuresTotal)
	return &Error{
		Kind: ErrCaptchaExhausted,
		Op:   "captcha",
		Err:  fmt.Errorf("%d tentativas", a.opts.MaxAttempts),
	}
}

func (a *Authenticator) saveSample(at captcha.Attempt, n int, accepted bool) {
	if _, err := a.samples.Save(at, n, accepted); err != nil {
		a.log.Warn().Err(err).Msg("Erro salvando amostra de captcha")
	}
}

// sleep espera d ou até ctx ser cancelado.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Session é a sessão HTTP autenticada de uma execução.
type Session struct {
	client    *http.Client
	base      *url.URL
	userAgent string
}

// BaseURL é a raiz do SIMASTER usada pela sessão.
func (s *Session) BaseURL() *url.URL {
	u := *s.base
	return &u
}

// Cookies devolve os cookies do SIMASTER, para transplantar no navegador.
func (s *Session) Cookies() []*http.Cookie {
	return s.client.Jar.Cookies(s.base)
}

type page struct {
	status int
	url    *url.URL
	body   []byte
	doc    *goquery.Document
}

type htmlForm struct {
	action string
	values url.Values
}

func (s *Session) fetch(ctx context.Context, method, target string, form url.Values) (*page, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &page{status: resp.StatusCode, url: resp.Request.URL, body: data}, nil
}

// form localiza o formulário, resolve a action contra a URL da página e
// copia todos os inputs nomeados com o valor original.
func (p *page) form(selector string) (*htmlForm, error) {
	if p.doc == nil {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
		if err != nil {
			return nil, err
		}
		p.doc = doc
	}

	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%s não encontrado", selector)
	}

	action, _ := sel.Attr("action")
	resolved, err := p.url.Parse(action)
	if err != nil {
		return nil, fmt.Errorf("action inválida %q: %w", action, err)
	}

	values := url.Values{}
	sel.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		value, _ := in.Attr("value")
		values.Set(name, value)
	})
	return &htmlForm{action: resolved.String(), values: values}, nil
}
