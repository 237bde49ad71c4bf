package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/xuri/excelize/v2"
)

func sampleRun() *attendance.Run {
	day := "2024-06-12"
	student := func(name, id string) attendance.Student {
		return attendance.Student{Name: name, StudentID: id}
	}
	return &attendance.Run{
		ID:        "run-1",
		Date:      day,
		StartedAt: time.Date(2024, time.June, 12, 8, 0, 0, 0, time.UTC),
		Results: []attendance.Result{
			{Student: student("Budi Santoso", "21012345"), Date: day, Status: attendance.PresentAt("08:45")},
			{Student: student("Siti Aminah", "21054321"), Date: day, Status: attendance.StatusAbsent},
			{Student: student("Ayu Lestari", "21099999"), Date: day, Status: attendance.PresentAt("07:10")},
			{Student: student("Rina, Putri", "21011111"), Date: day, Status: attendance.PendingAt("09:00")},
			{Student: student("Dewi", "21022222"), Date: day, Status: attendance.StatusError, Err: "target closed"},
			{Student: student("Joko", "21033333"), Date: day, Status: attendance.PresentAt("")},
		},
	}
}

func TestDefaultFilename(t *testing.T) {
	day := time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC)
	if got := DefaultFilename(day, ""); got != "kkn_attendance_20240602.csv" {
		t.Errorf("nome padrão = %q", got)
	}
	if got := DefaultFilename(day, FormatXLSX); got != "kkn_attendance_20240602.xlsx" {
		t.Errorf("nome padrão xlsx = %q", got)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRun().Records()); err != nil {
		t.Fatalf("WriteCSV falhou: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("csv gerado inválido: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("esperava cabeçalho + 6 linhas, veio %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "name,student_id,date,status,time" {
		t.Errorf("cabeçalho errado: %v", rows[0])
	}
	if strings.Join(rows[1], "|") != "Budi Santoso|21012345|2024-06-12|present|08:45" {
		t.Errorf("linha errada: %v", rows[1])
	}
	if rows[2][4] != "" {
		t.Errorf("absent não deveria ter horário: %v", rows[2])
	}
	if rows[4][0] != "Rina, Putri" {
		t.Errorf("nome com vírgula deveria ser preservado: %v", rows[4])
	}
}

func TestSaveCSVAndXLSX(t *testing.T) {
	dir := t.TempDir()
	run := sampleRun()

	path, err := Save(dir, "", FormatCSV, run)
	if err != nil {
		t.Fatalf("Save csv falhou: %v", err)
	}
	if filepath.Base(path) != "kkn_attendance_20240612.csv" {
		t.Errorf("nome do arquivo = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("arquivo não foi criado: %v", err)
	}

	path, err = Save(dir, "saida.xlsx", "XLSX", run)
	if err != nil {
		t.Fatalf("Save xlsx falhou: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("xlsx inválido: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("erro lendo planilha: %v", err)
	}
	if len(rows) != 7 || rows[0][0] != "name" || rows[3][1] != "21099999" {
		t.Errorf("conteúdo da planilha inesperado: %v", rows)
	}

	if _, err := Save(dir, "x.json", "json", run); err == nil {
		t.Errorf("formato desconhecido deveria falhar")
	}
	if _, err := os.Stat(filepath.Join(dir, "x.json")); !os.IsNotExist(err) {
		t.Errorf("arquivo de formato inválido não deveria ficar no disco")
	}
}

func TestSummary(t *testing.T) {
	want := "Total: 6, Present: 3, Absent: 1, Pending: 1, Errors: 1"
	if got := Summary(sampleRun()); got != want {
		t.Errorf("Summary = %q, esperado %q", got, want)
	}
}

func TestReportOrdersPresentByTime(t *testing.T) {
	got := Report(sampleRun())

	for _, want := range []string{
		"(2024-06-12)",
		"❌ Absent: 1\n✅ Present: 3\n",
		"*Absent Students:*\n1. Siti Aminah (21054321)\n",
		"*Present Students:*\n1. Ayu Lestari (21099999) at 07:10\n2. Budi Santoso (21012345) at 08:45\n3. Joko (21033333)\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("relatório não contém %q:\n%s", want, got)
		}
	}
}
