// Package export grava o resultado de uma execução em arquivo (CSV ou XLSX)
// e monta os resumos de texto mostrados no terminal e no chat.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	sheetName = "Presensi"
)

// Header é a ordem fixa das colunas exportadas.
var Header = []string{"name", "student_id", "date", "status", "time"}

// DefaultFilename gera kkn_attendance_YYYYMMDD.<format>.
func DefaultFilename(day time.Time, format string) string {
	if format == "" {
		format = FormatCSV
	}
	return fmt.Sprintf("kkn_attendance_%s.%s", day.Format("20060102"), format)
}

func row(r attendance.Record) []string {
	t := ""
	if r.Time != nil {
		t = *r.Time
	}
	return []string{r.Name, r.StudentID, r.Date, r.Status, t}
}

func WriteCSV(w io.Writer, records []attendance.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, records []attendance.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("erro renomeando planilha: %w", err)
	}

	for i, h := range Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}
	for i, r := range records {
		for j, v := range row(r) {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("erro escrevendo xlsx: %w", err)
	}
	return nil
}

// Save grava o arquivo em dir. Sem filename usa o nome padrão do dia da execução.
func Save(dir, filename, format string, run *attendance.Run) (string, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = FormatCSV
	}
	if filename == "" {
		filename = DefaultFilename(run.StartedAt, format)
	}
	if dir != "" && !filepath.IsAbs(filename) {
		filename = filepath.Join(dir, filename)
	}

	f, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("erro criando %s: %w", filename, err)
	}
	defer f.Close()

	switch format {
	case FormatCSV:
		err = WriteCSV(f, run.Records())
	case FormatXLSX:
		err = WriteXLSX(f, run.Records())
	default:
		err = fmt.Errorf("formato de exportação desconhecido: %q", format)
	}
	if err != nil {
		os.Remove(filename)
		return "", err
	}
	return filename, f.Close()
}
