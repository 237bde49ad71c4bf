package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/iZcy/kkn-script-presensi/internal/calendar"
	"github.com/iZcy/kkn-script-presensi/pkg/config"
	"github.com/rs/zerolog"
)

// Falhas por aluno: degradam o resultado para Unknown sem abortar o lote.
var (
	ErrLookupTimeout   = errors.New("dropdown de alunos não apareceu a tempo")
	ErrStudentNotFound = errors.New("aluno não encontrado no dropdown")
)

const (
	attendancePath = "/kkn/presensi/unit"
	studentSelect  = `select[name="mhsPeriodeId"]`
	resultForm     = "#form-presensi-unit"
	loadingClass   = "form-loading"

	nextButton = ".fc-next-button"
	prevButton = ".fc-prev-button"
	titleText  = ".fc-toolbar h2"

	pollInterval = 200 * time.Millisecond
)

type LookupOptions struct {
	BaseURL string
	// Wait limita navegação e a espera pelo dropdown.
	Wait time.Duration
	// LoadingWait limita a espera pelo fim do carregamento do calendário.
	LoadingWait    time.Duration
	Navigate       bool
	MaxPaginations int
}

func LookupOptionsFromConfig(cfg *config.Config) LookupOptions {
	return LookupOptions{
		BaseURL:        cfg.Portal.BaseURL,
		Wait:           cfg.BrowserWait(),
		LoadingWait:    cfg.LoadingWait(),
		Navigate:       cfg.Browser.Navigate,
		MaxPaginations: cfg.Browser.MaxPaginations,
	}
}

// Lookup consulta o calendário de um aluno por vez, numa aba nova por consulta.
type Lookup struct {
	browser *rod.Browser
	opts    LookupOptions
	log     zerolog.Logger
}

func NewLookup(b *rod.Browser, opts LookupOptions, log zerolog.Logger) *Lookup {
	if opts.Wait <= 0 {
		opts.Wait = 10 * time.Second
	}
	if opts.LoadingWait <= 0 {
		opts.LoadingWait = 10 * time.Second
	}
	return &Lookup{
		browser: b,
		opts:    opts,
		log:     log.With().Str("component", "lookup").Logger(),
	}
}

// Student abre a página de presença com os cookies da sessão HTTP, escolhe o
// aluno cujo texto contém query e lê o status do dia no calendário.
func (l *Lookup) Student(ctx context.Context, cookies []*http.Cookie, query string, date time.Time) (attendance.Status, error) {
	target, err := url.JoinPath(l.opts.BaseURL, attendancePath)
	if err != nil {
		return attendance.StatusError, fmt.Errorf("base_url inválida: %w", err)
	}

	page, err := stealth.Page(l.browser)
	if err != nil {
		return attendance.StatusError, fmt.Errorf("erro criando pagina stealth: %w", err)
	}
	defer page.Close()
	p := page.Context(ctx)

	if err := p.Timeout(l.opts.Wait).Navigate(target); err != nil {
		return attendance.StatusError, fmt.Errorf("erro navegando para %s: %w", target, err)
	}

	params, err := cookieParams(cookies, target)
	if err != nil {
		return attendance.StatusError, err
	}
	if err := p.SetCookies(params); err != nil {
		return attendance.StatusError, fmt.Errorf("erro transplantando cookies: %w", err)
	}

	// sem cookie o portal redireciona para o login; recarregar ficaria lá,
	// então navega de novo para a página de presença
	if err := p.Timeout(l.opts.Wait).Navigate(target); err != nil {
		return attendance.StatusError, fmt.Errorf("erro navegando para %s com a sessão: %w", target, err)
	}

	sel, err := p.Timeout(l.opts.Wait).Element(studentSelect)
	if err != nil {
		if ctx.Err() != nil {
			return attendance.StatusError, ctx.Err()
		}
		return attendance.StatusUnknown, fmt.Errorf("%w: %v", ErrLookupTimeout, err)
	}
	sel = sel.CancelTimeout()

	options, err := readOptions(sel)
	if err != nil {
		return attendance.StatusError, err
	}
	value, ok := matchOption(options, query)
	if !ok {
		return attendance.StatusUnknown, fmt.Errorf("%w: %q", ErrStudentNotFound, query)
	}

	if err := sel.Select([]string{fmt.Sprintf(`option[value=%q]`, value)}, true, rod.SelectorTypeCSSSector); err != nil {
		return attendance.StatusError, fmt.Errorf("erro selecionando aluno: %w", err)
	}
	l.waitLoading(ctx, p)

	if l.opts.Navigate {
		pager := &rodPager{page: p, wait: l.opts.Wait, settle: func() { l.waitLoading(ctx, p) }}
		clicks, err := calendar.Navigate(ctx, pager, calendar.MonthOf(date), l.opts.MaxPaginations)
		if err != nil {
			return attendance.StatusUnknown, err
		}
		if clicks > 0 {
			l.log.Debug().Int("clicks", clicks).Msg("Calendário paginado até o mês alvo")
		}
	}

	html, err := p.HTML()
	if err != nil {
		return attendance.StatusError, fmt.Errorf("erro lendo html da página: %w", err)
	}
	return calendar.ExtractHTML(html, date)
}

// waitLoading espera a classe de carregamento sair do formulário. Estourar o
// tempo não é fatal: o calendário é lido do jeito que estiver.
func (l *Lookup) waitLoading(ctx context.Context, p *rod.Page) {
	deadline := time.Now().Add(l.opts.LoadingWait)
	for {
		loading, err := hasClass(p, resultForm, loadingClass)
		if err == nil && !loading {
			return
		}
		if time.Now().After(deadline) {
			l.log.Warn().Err(err).Dur("timeout", l.opts.LoadingWait).Msg("Calendário não terminou de carregar, seguindo assim mesmo")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}

func hasClass(p *rod.Page, selector, class string) (bool, error) {
	el, err := p.Timeout(pollInterval).Element(selector)
	if err != nil {
		return false, err
	}
	attr, err := el.CancelTimeout().Attribute("class")
	if err != nil {
		return false, err
	}
	if attr == nil {
		return false, nil
	}
	for _, c := range strings.Fields(*attr) {
		if c == class {
			return true, nil
		}
	}
	return false, nil
}

type option struct {
	Value string
	Text  string
}

func readOptions(sel *rod.Element) ([]option, error) {
	els, err := sel.Elements("option")
	if err != nil {
		return nil, fmt.Errorf("erro lendo opções do dropdown: %w", err)
	}
	out := make([]option, 0, len(els))
	for _, el := range els {
		text, _ := el.Text()
		value, _ := el.Attribute("value")
		o := option{Text: text}
		if value != nil {
			o.Value = *value
		}
		out = append(out, o)
	}
	return out, nil
}

// matchOption retorna a primeira opção cujo texto contém query, sem
// diferenciar maiúsculas.
func matchOption(options []option, query string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", false
	}
	for _, o := range options {
		if o.Value != "" && strings.Contains(strings.ToLower(o.Text), q) {
			return o.Value, true
		}
	}
	return "", false
}

// cookieParams converte os cookies do jar HTTP para o formato do CDP, todos
// vinculados à URL da página de presença.
func cookieParams(cookies []*http.Cookie, target string) ([]*proto.NetworkCookieParam, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("url de cookies inválida: %w", err)
	}
	origin := u.Scheme + "://" + u.Host

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			URL:      origin,
			Path:     path,
			Secure:   c.Secure || u.Scheme == "https",
			HTTPOnly: c.HttpOnly,
		})
	}
	return params, nil
}

// rodPager implementa calendar.Pager sobre os botões do FullCalendar.
type rodPager struct {
	page   *rod.Page
	wait   time.Duration
	settle func()
}

func (r *rodPager) Header(ctx context.Context) (string, error) {
	el, err := r.page.Context(ctx).Timeout(r.wait).Element(titleText)
	if err != nil {
		return "", err
	}
	return el.CancelTimeout().Text()
}

func (r *rodPager) Next(ctx context.Context) error { return r.click(ctx, nextButton) }
func (r *rodPager) Prev(ctx context.Context) error { return r.click(ctx, prevButton) }

func (r *rodPager) click(ctx context.Context, selector string) error {
	el, err := r.page.Context(ctx).Timeout(r.wait).Element(selector)
	if err != nil {
		return err
	}
	if err := el.CancelTimeout().Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if r.settle != nil {
		r.settle()
	}
	return nil
}
