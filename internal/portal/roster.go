package portal

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/iZcy/kkn-script-presensi/internal/attendance"
)

const (
	RosterPath    = "/kkn/presensi/unit"
	StudentSelect = `select[name="mhsPeriodeId"]`
)

// "Nome Completo (21012345)"
var optionPattern = regexp.MustCompile(`^(.+?)\s*\((\d+)\)$`)

// Roster lê a lista de alunos da unidade na página de presença.
func (s *Session) Roster(ctx context.Context) ([]attendance.Student, error) {
	p, err := s.fetch(ctx, http.MethodGet, s.base.JoinPath(RosterPath).String(), nil)
	if err != nil {
		return nil, unreachable("roster", err)
	}
	if p.status != http.StatusOK {
		return nil, unreachable("roster", statusError(p.status))
	}
	return ParseRoster(bytes.NewReader(p.body))
}

// ParseRoster extrai os alunos do dropdown mhsPeriodeId. Opções sem valor ou
// fora do formato "Nome (NIM)" são ignoradas; a ordem do portal é mantida.
func ParseRoster(r io.Reader) ([]attendance.Student, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, formNotFound("roster", err.Error())
	}

	sel := doc.Find(StudentSelect).First()
	if sel.Length() == 0 {
		return nil, formNotFound("roster", "dropdown de alunos não encontrado")
	}

	students := []attendance.Student{}
	sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
		value, _ := opt.Attr("value")
		text := strings.TrimSpace(opt.Text())
		if value == "" || text == "" {
			return
		}
		m := optionPattern.FindStringSubmatch(text)
		if m == nil {
			return
		}
		students = append(students, attendance.Student{
			Value:     value,
			Name:      strings.TrimSpace(m[1]),
			StudentID: m[2],
		})
	})
	return students, nil
}
