// Package calendar isola o acoplamento com o FullCalendar renderizado pelo
// portal: localizar a célula do dia, alinhar pela coluna com a grade de
// overlays (fc-bgevent-skeleton) e decodificar a cor do evento.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/iZcy/kkn-script-presensi/internal/attendance"
)

// Cores inline usadas pelo portal nos eventos de fundo.
const (
	ColorPresent = "rgb(120, 189, 93)"
	ColorAbsent  = "rgb(228, 96, 80)"
	ColorPending = "rgb(244, 171, 67)"
)

// Variações da célula do dia, na ordem de preferência.
var cellSelectors = []string{
	`td.fc-day-top[data-date="%s"]`,
	`td.fc-day[data-date="%s"]`,
	`td[data-date="%s"]`,
}

// Extract lê o status de presença do dia informado. É uma função pura do DOM.
//
// Célula inexistente e célula sem marcador reconhecido retornam Absent; sem o
// container fc-row a estrutura não é reconhecida e o resultado é Unknown.
func Extract(doc *goquery.Document, date time.Time) attendance.Status {
	day := date.Format(attendance.DateLayout)

	cell := findDayCell(doc, day)
	if cell == nil {
		return attendance.StatusAbsent
	}

	// a coluna é a posição do dia na semana; a grade de overlay é paralela,
	// então o mesmo índice aponta para o evento do dia
	column := cell.Closest("tr").Find("td").IndexOfSelection(cell)
	if column < 0 {
		return attendance.StatusUnknown
	}

	row := cell.Closest("div.fc-row")
	if row.Length() == 0 {
		return attendance.StatusUnknown
	}

	status := attendance.StatusAbsent
	row.Find("div.fc-bgevent-skeleton").EachWithBreak(func(_ int, skeleton *goquery.Selection) bool {
		cells := skeleton.Find("tr").First().Find("td")
		if column >= cells.Length() {
			return true
		}
		event := cells.Eq(column)
		style, _ := event.Attr("style")
		text := strings.TrimSpace(event.Text())

		switch {
		case strings.Contains(style, ColorPresent):
			status = attendance.PresentAt(text)
		case strings.Contains(style, ColorAbsent):
			status = attendance.StatusAbsent
		case strings.Contains(style, ColorPending):
			status = attendance.PendingAt(text)
		default:
			return true
		}
		return false
	})
	return status
}

// ExtractHTML é Extract sobre HTML cru (page.HTML() do navegador).
func ExtractHTML(html string, date time.Time) (attendance.Status, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return attendance.StatusUnknown, fmt.Errorf("erro parseando html do calendário: %w", err)
	}
	return Extract(doc, date), nil
}

func findDayCell(doc *goquery.Document, day string) *goquery.Selection {
	for _, sel := range cellSelectors {
		if cell := doc.Find(fmt.Sprintf(sel, day)).First(); cell.Length() > 0 {
			return cell
		}
	}
	return nil
}
