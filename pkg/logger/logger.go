package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New cria o logger base do processo. Em "dev" usa saída colorida legível,
// nos outros ambientes JSON por linha.
func New(level, env string) zerolog.Logger {
	return NewWithWriter(os.Stderr, level, env)
}

func NewWithWriter(w io.Writer, level, env string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if env == "" || env == "dev" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Component deriva um logger com o campo "component", usado em todos os pacotes.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
