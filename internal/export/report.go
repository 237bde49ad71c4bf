package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iZcy/kkn-script-presensi/internal/attendance"
)

// Summary é a linha de contagem impressa ao fim de uma checagem.
func Summary(run *attendance.Run) string {
	return fmt.Sprintf("Total: %d, Present: %d, Absent: %d, Pending: %d, Errors: %d",
		len(run.Results),
		run.Count(attendance.Present),
		run.Count(attendance.Absent),
		run.Count(attendance.Pending),
		run.Count(attendance.Error),
	)
}

// Report monta a mensagem enviada no grupo: ausentes primeiro, depois os
// presentes ordenados pelo horário (sem horário vai para o fim).
func Report(run *attendance.Run) string {
	var absent, present []attendance.Result
	for _, r := range run.Results {
		switch r.Status.Kind {
		case attendance.Absent:
			absent = append(absent, r)
		case attendance.Present:
			present = append(present, r)
		}
	}

	sort.SliceStable(present, func(i, j int) bool {
		a, b := present[i].Status.Time, present[j].Status.Time
		if a == "" || b == "" {
			return b == "" && a != ""
		}
		return a < b
	})

	var b strings.Builder
	fmt.Fprintf(&b, "📋 *KKN Attendance Summary* (%s)\n\n", run.Date)
	fmt.Fprintf(&b, "❌ Absent: %d\n✅ Present: %d\n\n", len(absent), len(present))

	if len(absent) > 0 {
		b.WriteString("*Absent Students:*\n")
		for i, r := range absent {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, r.Student.Name, r.Student.StudentID)
		}
		b.WriteString("\n")
	}

	if len(present) > 0 {
		b.WriteString("*Present Students:*\n")
		for i, r := range present {
			at := ""
			if r.Status.Time != "" {
				at = " at " + r.Status.Time
			}
			fmt.Fprintf(&b, "%d. %s (%s)%s\n", i+1, r.Student.Name, r.Student.StudentID, at)
		}
	}
	return b.String()
}
