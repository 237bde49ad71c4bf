package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var headerPattern = regexp.MustCompile(`([A-Za-z]+)\s+(\d{4})`)

// Nomes de mês aceitos no título do calendário. O portal alterna entre
// inglês e indonésio conforme o locale da sessão.
var monthNames = map[string]time.Month{
	"january": time.January, "januari": time.January, "jan": time.January,
	"february": time.February, "februari": time.February, "feb": time.February,
	"march": time.March, "maret": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May, "mei": time.May,
	"june": time.June, "juni": time.June, "jun": time.June,
	"july": time.July, "juli": time.July, "jul": time.July,
	"august": time.August, "agustus": time.August, "aug": time.August, "agu": time.August,
	"september": time.September, "sep": time.September,
	"october": time.October, "oktober": time.October, "oct": time.October, "okt": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "desember": time.December, "dec": time.December, "des": time.December,
}

// Month é um par mês/ano exibido no cabeçalho.
type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Before compara cronologicamente.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%s %d", m.Month, m.Year)
}

// ParseHeader interpreta textos como "March 2024" ou "Maret 2024".
func ParseHeader(text string) (Month, error) {
	match := headerPattern.FindStringSubmatch(text)
	if match == nil {
		return Month{}, fmt.Errorf("cabeçalho fora do padrão 'Mês Ano': %q", text)
	}

	month, ok := monthNames[strings.ToLower(match[1])]
	if !ok {
		return Month{}, fmt.Errorf("mês desconhecido no cabeçalho: %q", match[1])
	}
	year, err := strconv.Atoi(match[2])
	if err != nil {
		return Month{}, fmt.Errorf("ano inválido no cabeçalho: %q", match[2])
	}
	return Month{Year: year, Month: month}, nil
}
