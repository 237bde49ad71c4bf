package attendance

import (
	"time"
)

// DateLayout é o formato de data usado pelo portal (atributo data-date do calendário)
// e pelos registros exportados.
const DateLayout = "2006-01-02"

// Kind é o status discreto de presença de um aluno em um dia.
type Kind int

const (
	Unknown Kind = iota
	Present
	Absent
	Pending
	// Error marca um aluno cuja consulta falhou de forma inesperada.
	Error
)

func (k Kind) String() string {
	switch k {
	case Present:
		return "present"
	case Absent:
		return "absent"
	case Pending:
		return "pending"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Status é o resultado da leitura do calendário. Time só é preenchido para
// Present e Pending (texto da célula de overlay, ex: "08:15").
type Status struct {
	Kind Kind
	Time string
}

func PresentAt(t string) Status { return Status{Kind: Present, Time: t} }
func PendingAt(t string) Status { return Status{Kind: Pending, Time: t} }

var (
	StatusAbsent  = Status{Kind: Absent}
	StatusUnknown = Status{Kind: Unknown}
	StatusError   = Status{Kind: Error}
)

// Student é uma entrada do dropdown de alunos do portal.
type Student struct {
	// Value é o valor opaco da <option> (mhsPeriodeId).
	Value     string `json:"value"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
}

// Result é a linha de um aluno em uma execução.
type Result struct {
	Student Student
	Date    string
	Status  Status
	// Err guarda a causa quando o status foi degradado (Unknown/Error).
	Err string
}

// Record é a forma plana exportada (CSV, JSON da API, sinks).
type Record struct {
	Name      string  `json:"name"`
	StudentID string  `json:"student_id"`
	Date      string  `json:"date"`
	Status    string  `json:"status"`
	Time      *string `json:"time"`
}

func (r Result) Record() Record {
	rec := Record{
		Name:      r.Student.Name,
		StudentID: r.Student.StudentID,
		Date:      r.Date,
		Status:    r.Status.Kind.String(),
	}
	if r.Status.Time != "" {
		t := r.Status.Time
		rec.Time = &t
	}
	return rec
}

// Run agrupa os resultados de uma execução, na ordem do roster.
type Run struct {
	ID         string
	Date       string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
}

func (r *Run) Records() []Record {
	records := make([]Record, 0, len(r.Results))
	for _, res := range r.Results {
		records = append(records, res.Record())
	}
	return records
}

// Count retorna quantos resultados têm o status informado.
func (r *Run) Count(k Kind) int {
	n := 0
	for _, res := range r.Results {
		if res.Status.Kind == k {
			n++
		}
	}
	return n
}
