package browser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const OrphanProfileTTL = 90 * time.Minute

// StartProfileSweeper remove periodicamente perfis órfãos (deixados por um
// crash antes do Close) até ctx ser cancelado.
func StartProfileSweeper(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	log = log.With().Str("component", "gc").Logger()
	log.Info().Dur("interval", interval).Msg("Iniciando Profile Sweeper")

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			SweepOrphanProfiles(os.TempDir(), OrphanProfileTTL, log)
		}
	}
}

// SweepOrphanProfiles apaga perfis com o prefixo do checker mais antigos que
// ttl e retorna quantos foram removidos.
func SweepOrphanProfiles(baseDir string, ttl time.Duration, log zerolog.Logger) int {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", baseDir).Msg("Erro lendo diretório base")
		return 0
	}

	removed := 0
	now := time.Now()

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), ProfilePrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()) > ttl {
			fullPath := filepath.Join(baseDir, entry.Name())
			if err := os.RemoveAll(fullPath); err != nil {
				log.Warn().Err(err).Str("profile", fullPath).Msg("Erro removendo perfil órfão")
			} else {
				removed++
			}
		}
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Sweeper removeu perfis órfãos do diretório temporário")
	}
	return removed
}
