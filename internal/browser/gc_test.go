package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestProfileSweeperLogic(t *testing.T) {
	tempDir := t.TempDir()

	activeProfile := filepath.Join(tempDir, ProfilePrefix+"active123")
	orphanProfile := filepath.Join(tempDir, ProfilePrefix+"orphan456")
	unrelatedFolder := filepath.Join(tempDir, "some_other_folder")

	for _, dir := range []string{activeProfile, orphanProfile, unrelatedFolder} {
		if err := os.Mkdir(dir, 0755); err != nil {
			t.Fatalf("Erro criando pasta mock %s: %v", dir, err)
		}
	}

	now := time.Now()
	old := now.Add(-2 * time.Hour)

	// perfil ativo tem 10 minutos
	if err := os.Chtimes(activeProfile, now.Add(-10*time.Minute), now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("Erro mockando tempo do active profile: %v", err)
	}
	// pasta sem o prefixo é antiga mas não pode ser tocada
	if err := os.Chtimes(unrelatedFolder, old, old); err != nil {
		t.Fatalf("Erro mockando tempo da unrelated folder: %v", err)
	}
	if err := os.Chtimes(orphanProfile, old, old); err != nil {
		t.Fatalf("Erro mockando tempo do orphan profile: %v", err)
	}

	removed := SweepOrphanProfiles(tempDir, OrphanProfileTTL, zerolog.Nop())

	if removed != 1 {
		t.Errorf("esperava 1 perfil removido, foram %d", removed)
	}
	if _, err := os.Stat(activeProfile); os.IsNotExist(err) {
		t.Errorf("O Sweeper apagou um perfil ativo (recente)!")
	}
	if _, err := os.Stat(unrelatedFolder); os.IsNotExist(err) {
		t.Errorf("O Sweeper apagou uma pasta que não tem o prefixo do checker!")
	}
	if _, err := os.Stat(orphanProfile); !os.IsNotExist(err) {
		t.Errorf("O Sweeper não apagou o perfil órfão antigo!")
	}
}

func TestProfileSweeperMissingDir(t *testing.T) {
	if n := SweepOrphanProfiles(filepath.Join(t.TempDir(), "nao-existe"), time.Minute, zerolog.Nop()); n != 0 {
		t.Errorf("diretório inexistente não deveria remover nada, removeu %d", n)
	}
}
